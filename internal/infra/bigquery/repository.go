// Package bigquery stores engine inputs, outputs and run history in BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

const scheme = "bq://"

// Table names inside the engine dataset.
const (
	runsTable          = "tax_runs"
	factTable          = "tax_fact"
	summaryTable       = "tax_summary"
	periodSummaryTable = "tax_summary_by_period"
	validationTable    = "tax_validation"
)

// ErrInvalidURI is returned for URIs that are not of the form bq://project/dataset.
var ErrInvalidURI = errors.New("invalid BigQuery URI")

// IsURI reports whether s names a BigQuery dataset.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits bq://project/dataset into its parts.
func ParseURI(uri string) (projectID, datasetID string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("ParseURI: %q: %w", uri, ErrInvalidURI)
	}
	projectID, datasetID, ok := strings.Cut(strings.Trim(strings.TrimPrefix(uri, scheme), "/"), "/")
	if !ok || projectID == "" || datasetID == "" || strings.Contains(datasetID, "/") {
		return "", "", fmt.Errorf("ParseURI: %q: %w", uri, ErrInvalidURI)
	}
	return projectID, datasetID, nil
}

// Repository is the BigQuery implementation of the engine's source reader,
// result writer and run recorder. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a Repository for projectID.datasetID with a new client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryFromURI creates a Repository for a bq://project/dataset URI.
func NewRepositoryFromURI(ctx context.Context, uri string) (*Repository, error) {
	projectID, datasetID, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return NewRepository(ctx, projectID, datasetID)
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{client: client, projectID: client.Project(), datasetID: datasetID}
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Location returns the bq:// URI of the repository's dataset.
func (r *Repository) Location() string {
	return scheme + r.projectID + "/" + r.datasetID
}

func qualified(projectID, datasetID, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, table)
}

// runQuery runs a DML statement and waits for it to finish.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
