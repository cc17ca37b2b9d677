package pipeline

import (
	"context"

	infra "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/google/uuid"
)

// LogRecorder is a RunRecorder that only logs. It is used when runs are not
// recorded in BigQuery.
type LogRecorder struct{}

func (LogRecorder) StartRun(ctx context.Context, sourceURI, outputURI, rateMode string) (string, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", runID).
		Str("source", sourceURI).
		Str("output", outputURI).
		Str("rate_mode", rateMode).
		Msg("Run started")
	return runID, nil
}

func (LogRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)
	log.Error().Err(runErr).Str("run_id", runID).Msg("Run failed")
}

func (LogRecorder) MarkRunSucceeded(ctx context.Context, runID string, stats infra.RunStats) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", runID).
		Int("transactions", stats.Transactions).
		Int("findings", stats.Findings).
		Msg("Run succeeded")
	return nil
}
