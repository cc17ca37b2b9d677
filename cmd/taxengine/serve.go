package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/api/handlers"
	"github.com/dvloznov/opa-taxengine/internal/api/middleware"
	"github.com/dvloznov/opa-taxengine/internal/config"
	infraBQ "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/jobs"
	"github.com/dvloznov/opa-taxengine/internal/jobs/inmemory"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/rs/zerolog"
)

func runServe(log zerolog.Logger, env *config.Env) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.String("port", env.Port, "HTTP server port")
	workers := fs.Int("workers", env.Workers, "Concurrent tax runs")
	maxRetries := fs.Int("max-retries", env.MaxRetries, "Retries for a failed tax run")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	var ledger handlers.RunLister
	if env.RecordRuns && env.ProjectID != "" {
		repo, err := infraBQ.NewRepository(ctx, env.ProjectID, env.RunsDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open run ledger")
		}
		defer repo.Close()
		log.Info().Str("ledger", repo.Location()).Msg("Recording runs")
		ledger = repo
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.QueueOptions{Workers: *workers, MaxRetries: *maxRetries}, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobHandler(env)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	router := handlers.NewRouter(
		handlers.NewRunsHandler(jobQueue, jobStore, log),
		handlers.NewLedgerHandler(ledger, log),
		handlers.NewConfigHandler(env.ConfigDir),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(router, middleware.Recovery(log), middleware.RequestID, middleware.Logger(log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Int("workers", *workers).Msg("Starting tax engine server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

// jobHandler runs a queued job with the server defaults filling in whatever
// the job leaves empty.
func jobHandler(env *config.Env) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.TaxRunJob) error {
		ctx, cancel := context.WithTimeout(ctx, env.Timeout)
		defer cancel()

		state, err := executeRun(ctx, env, jobRequest(env, job))
		if state != nil {
			job.RunID = state.RunID
			stats := state.Stats()
			job.Transactions = stats.Transactions
			job.Findings = stats.Findings
		}
		return err
	}
}

func jobRequest(env *config.Env, job *jobs.TaxRunJob) runRequest {
	req := runRequest{
		Source:       job.SourceURI,
		Outputs:      job.Outputs,
		ConfigDir:    env.ConfigDir,
		Mode:         job.RateMode,
		StatePortion: env.StatePortion.String(),
		Record:       env.RecordRuns,
	}
	if req.Source == "" {
		req.Source = env.Source
	}
	if len(req.Outputs) == 0 {
		req.Outputs = splitOutputs(env.Output)
	}
	if req.Mode == "" {
		req.Mode = env.RateMode
	}
	return req
}
