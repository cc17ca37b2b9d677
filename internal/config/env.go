// Package config loads the engine's environment, Parameters.json and
// Column_Map.csv, and validates the configuration folder.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ErrInvalidMode is returned for rate modes other than components and combined.
var ErrInvalidMode = errors.New("invalid rate mode")

// Env holds the settings read from the process environment.
type Env struct {
	Source       string          `env:"TAX_SOURCE"`
	Output       string          `env:"TAX_OUTPUT" envDefault:"exports"`
	ConfigDir    string          `env:"TAX_CONFIG_DIR" envDefault:"config"`
	ProjectID    string          `env:"GCP_PROJECT"`
	RateMode     string          `env:"TAX_RATE_MODE" envDefault:"components"`
	StatePortion decimal.Decimal `env:"TAX_STATE_PORTION" envDefault:"0.029"`
	LogLevel     string          `env:"TAX_LOG_LEVEL" envDefault:"info"`
	LogFormat    string          `env:"TAX_LOG_FORMAT" envDefault:"console"`
	Timeout      time.Duration   `env:"TAX_TIMEOUT" envDefault:"5m"`
	RecordRuns   bool            `env:"TAX_RECORD_RUNS" envDefault:"false"`
	RunsDataset  string          `env:"TAX_RUNS_DATASET" envDefault:"sales_tax"`

	// Settings of the serve command.
	Port       string `env:"PORT" envDefault:"8080"`
	Workers    int    `env:"TAX_WORKERS" envDefault:"2"`
	MaxRetries int    `env:"TAX_MAX_RETRIES" envDefault:"0"`
}

// LoadEnv reads a .env file from the working directory when one exists and
// then parses the environment.
func LoadEnv(files ...string) (*Env, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("LoadEnv: loading .env: %w", err)
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("LoadEnv: parse env: %w", err)
	}
	if _, err := e.Mode(); err != nil {
		return nil, fmt.Errorf("LoadEnv: %w", err)
	}
	return &e, nil
}

// Mode parses RateMode.
func (e *Env) Mode() (tax.Mode, error) {
	m, err := tax.ParseMode(e.RateMode)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, e.RateMode)
	}
	return m, nil
}

// LogOptions returns the logger settings.
func (e *Env) LogOptions() logger.Options {
	return logger.Options{Level: e.LogLevel, Format: e.LogFormat}
}
