package pipeline

import (
	"context"

	infra "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/table"
	"github.com/dvloznov/opa-taxengine/internal/tax"
)

// SourceReader loads one input dataset as a raw table. Implemented by
// ingest.FileSource, gcs.Source and the BigQuery repository.
type SourceReader interface {
	ReadTable(ctx context.Context, ds ingest.Dataset) (*table.Table, error)
}

// OutputWriter persists the result of one run. Implemented by
// export.ResultWriter and the BigQuery repository.
type OutputWriter interface {
	WriteResult(ctx context.Context, runID string, res *tax.Result) error
}

// RunRecorder keeps the run ledger.
type RunRecorder interface {
	// StartRun records a new run with status=RUNNING and returns its id.
	StartRun(ctx context.Context, sourceURI, outputURI, rateMode string) (string, error)

	// MarkRunFailed sets status=FAILED with the error message.
	MarkRunFailed(ctx context.Context, runID string, runErr error)

	// MarkRunSucceeded sets status=SUCCESS with the run counts.
	MarkRunSucceeded(ctx context.Context, runID string, stats infra.RunStats) error
}
