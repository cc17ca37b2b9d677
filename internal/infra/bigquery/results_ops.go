package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/tax"
)

// insertBatchSize keeps each streaming insert request well under the API
// request size limit.
const insertBatchSize = 500

// WriteResult delegates to WriteResultWithClient with the shared client.
func (r *Repository) WriteResult(ctx context.Context, runID string, res *tax.Result) error {
	return WriteResultWithClient(ctx, r.client, r.datasetID, runID, res)
}

// WriteResultWithClient inserts the fact, summary and validation rows of one
// run. Every row carries runID so runs can be told apart.
func WriteResultWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, res *tax.Result) error {
	log := logger.FromContext(ctx)
	ds := client.Dataset(datasetID)

	summary, byPeriod := toSummaryRows(runID, res.Summary, res.PeriodSummary)

	if err := insertRows(ctx, ds.Table(factTable), toFactRows(runID, res.Facts, time.Now())); err != nil {
		return fmt.Errorf("WriteResult: inserting fact rows: %w", err)
	}
	if err := insertRows(ctx, ds.Table(summaryTable), summary); err != nil {
		return fmt.Errorf("WriteResult: inserting summary rows: %w", err)
	}
	if len(byPeriod) > 0 {
		if err := insertRows(ctx, ds.Table(periodSummaryTable), byPeriod); err != nil {
			return fmt.Errorf("WriteResult: inserting period summary rows: %w", err)
		}
	}
	if err := insertRows(ctx, ds.Table(validationTable), toValidationRows(runID, res.Validation)); err != nil {
		return fmt.Errorf("WriteResult: inserting validation rows: %w", err)
	}

	log.Info().
		Str("run_id", runID).
		Str("dataset", datasetID).
		Int("fact_rows", len(res.Facts.Rows)).
		Int("summary_rows", len(summary)).
		Msg("Wrote results to BigQuery")
	return nil
}

func insertRows[T any](ctx context.Context, t *bigquery.Table, rows []*T) error {
	inserter := t.Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}
