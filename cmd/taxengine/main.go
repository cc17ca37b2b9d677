package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	_ "time/tzdata"

	"github.com/dvloznov/opa-taxengine/internal/config"
	"github.com/dvloznov/opa-taxengine/internal/export"
	"github.com/dvloznov/opa-taxengine/internal/gcs"
	infraBQ "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/pipeline"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid environment configuration")
	}
	log := logger.NewFromOptions(env.LogOptions())

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runTax(log, env)
	case "validate-config":
		runValidateConfig(env)
	case "upload":
		runUpload(log)
	case "runs":
		runListRuns(log, env)
	case "serve":
		runServe(log, env)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("OPA Sales Tax Engine")
	fmt.Println("\nUsage:")
	fmt.Println("  taxengine <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run              Compute sales tax and write the fact, summary and validation outputs")
	fmt.Println("  validate-config  Check Parameters.json and Column_Map.csv")
	fmt.Println("  upload           Upload a source file to GCS")
	fmt.Println("  runs             List recent runs recorded in BigQuery")
	fmt.Println("  serve            Start the HTTP server that queues tax runs")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nSources and outputs are a folder, gs://bucket/prefix or bq://project/dataset.")
	fmt.Println("Run 'taxengine <command> -h' for more information on a command.")
}

func runTax(log zerolog.Logger, env *config.Env) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	source := fs.String("source", env.Source, "Source folder or URI (defaults to Imports_Folder_Path)")
	output := fs.String("output", env.Output, "Comma-separated output folders or URIs")
	configDir := fs.String("config", env.ConfigDir, "Configuration folder")
	mode := fs.String("mode", env.RateMode, "Rate mode: components or combined")
	statePortion := fs.String("state-portion", env.StatePortion.String(), "State rate excluded for Local Only sales in combined mode")
	record := fs.Bool("record-runs", env.RecordRuns, "Record the run in the BigQuery tax_runs table")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), env.Timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	req := runRequest{
		Source:       *source,
		Outputs:      splitOutputs(*output),
		ConfigDir:    *configDir,
		Mode:         *mode,
		StatePortion: *statePortion,
		Record:       *record,
	}
	state, err := executeRun(ctx, env, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Tax run failed")
	}

	v := state.Result.Validation
	fmt.Printf("Run %s: %d transactions, %d jurisdictions, wrote outputs to %s\n",
		state.RunID, len(state.Result.Facts.Rows), len(state.Result.Summary), state.OutputURI)
	if v.HasFindings() {
		fmt.Printf("Unmapped SKUs: %d, unmapped devices: %d, overlapping rates: %d (see %s)\n",
			len(v.UnmappedSKUs), len(v.UnmappedDevices), len(v.OverlappingRates), export.ValidationFile)
	}
}

// runRequest is one tax run as asked for by the run command or a queued job.
type runRequest struct {
	Source       string
	Outputs      []string
	ConfigDir    string
	Mode         string
	StatePortion string
	Record       bool
}

// executeRun loads the configuration, opens the source and outputs and runs
// the pipeline. Clients are closed before it returns.
func executeRun(ctx context.Context, env *config.Env, req runRequest) (*pipeline.PipelineState, error) {
	log := logger.FromContext(ctx)

	params, err := config.LoadParametersOrDefault(req.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("executeRun: loading parameters: %w", err)
	}
	columnMap, err := loadColumnMap(req.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("executeRun: loading column map: %w", err)
	}
	engine, err := engineOptions(params, req.Mode, req.StatePortion)
	if err != nil {
		return nil, fmt.Errorf("executeRun: %w", err)
	}

	src := resolveSource(req.Source, params)
	output := strings.Join(req.Outputs, ",")

	res := &resources{}
	defer res.Close()

	deps := pipeline.Deps{}
	if deps.Source, err = res.openSource(ctx, src); err != nil {
		return nil, fmt.Errorf("executeRun: opening source %s: %w", src, err)
	}
	if deps.Writers, err = res.openWriters(ctx, req.Outputs); err != nil {
		return nil, fmt.Errorf("executeRun: opening outputs %s: %w", output, err)
	}
	if req.Record {
		if env.ProjectID == "" {
			return nil, fmt.Errorf("executeRun: GCP_PROJECT is required to record runs")
		}
		if deps.Recorder, err = res.openRepository(ctx, "bq://"+env.ProjectID+"/"+env.RunsDataset); err != nil {
			return nil, fmt.Errorf("executeRun: opening run ledger: %w", err)
		}
	}

	log.Info().
		Str("source", src).
		Str("output", output).
		Str("mode", engine.Mode.String()).
		Msg("Starting tax run")

	return pipeline.Run(ctx, deps, pipeline.Options{
		SourceURI: src,
		OutputURI: output,
		Aliases:   columnMap.AliasSets(),
		Engine:    engine,
	})
}

func loadColumnMap(dir string) (*config.ColumnMap, error) {
	if _, err := os.Stat(filepath.Join(dir, config.ColumnMapFile)); os.IsNotExist(err) {
		return &config.ColumnMap{}, nil
	}
	return config.LoadColumnMap(dir)
}

// engineOptions combines Parameters.json with the mode flags.
func engineOptions(params *config.Parameters, mode, statePortion string) (tax.Options, error) {
	m, err := tax.ParseMode(mode)
	if err != nil {
		return tax.Options{}, fmt.Errorf("%w: %q", config.ErrInvalidMode, mode)
	}
	portion, err := decimal.NewFromString(strings.TrimSpace(statePortion))
	if err != nil {
		return tax.Options{}, fmt.Errorf("invalid state portion %q: %w", statePortion, err)
	}
	freq, err := params.Frequency()
	if err != nil {
		return tax.Options{}, err
	}
	loc, err := params.Location()
	if err != nil {
		return tax.Options{}, err
	}
	return tax.Options{
		Mode:             m,
		StatePortion:     decimal.NewNullDecimal(portion),
		AllowZIPFallback: bool(params.AllowZIPFallback),
		Location:         loc,
		FilingFrequency:  freq,
	}, nil
}

func resolveSource(source string, params *config.Parameters) string {
	if source != "" {
		return source
	}
	if params.ImportsFolderPath != "" {
		return params.ImportsFolderPath
	}
	return "data"
}

func runValidateConfig(env *config.Env) {
	fs := flag.NewFlagSet("validate-config", flag.ExitOnError)
	configDir := fs.String("config", env.ConfigDir, "Configuration folder")
	fs.Parse(os.Args[2:])

	report := config.Validate(*configDir)
	printReport(os.Stdout, *configDir, report)
	if !report.OK() {
		os.Exit(1)
	}
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local source file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: taxengine upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcs.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}

func runListRuns(log zerolog.Logger, env *config.Env) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	project := fs.String("project", env.ProjectID, "GCP project ID")
	dataset := fs.String("dataset", env.RunsDataset, "BigQuery dataset holding tax_runs")
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: -project (or GCP_PROJECT) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), env.Timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	runs, err := repo.ListRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Printf("%-36s  %-8s  %-10s  %-20s  %s\n", "RUN ID", "STATUS", "MODE", "STARTED", "SOURCE")
	for _, r := range runs {
		fmt.Printf("%-36s  %-8s  %-10s  %-20s  %s\n",
			r.RunID, r.Status, r.RateMode, r.StartedTS.Format("2006-01-02 15:04:05"), r.SourceURI)
		if r.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", r.ErrorMessage)
		}
	}
}
