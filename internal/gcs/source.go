package gcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/table"
)

// Source reads the engine datasets from objects under gs://bucket/prefix.
type Source struct {
	store  ObjectStore
	bucket string
	prefix string
}

// NewSource creates a Source for a gs:// folder URI.
func NewSource(store ObjectStore, uri string) (*Source, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("NewSource: %w", err)
	}
	return &Source{store: store, bucket: bucket, prefix: prefix}, nil
}

// ReadTable loads the first candidate object that exists for ds.
func (s *Source) ReadTable(ctx context.Context, ds ingest.Dataset) (*table.Table, error) {
	log := logger.FromContext(ctx)

	for _, name := range ingest.Candidates(ds) {
		object := ObjectPath(s.prefix, name)
		data, err := s.store.FetchObject(ctx, s.bucket, object)
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Source.ReadTable: %w", err)
		}

		t, warnings, err := ingest.Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("Source.ReadTable: %w", err)
		}
		for _, w := range warnings {
			log.Warn().Str("object", object).Int("row", w.Row).Msg(w.Message)
		}
		log.Debug().
			Str("dataset", string(ds)).
			Str("gcs_uri", scheme+s.bucket+"/"+object).
			Int("rows", t.Len()).
			Msg("Loaded source")
		return t, nil
	}

	return nil, fmt.Errorf("Source.ReadTable: %s in gs://%s/%s: %w", ds, s.bucket, s.prefix, ingest.ErrSourceNotFound)
}

// Writer stores output files under gs://bucket/prefix.
type Writer struct {
	store  ObjectStore
	bucket string
	prefix string
}

// NewWriter creates a Writer for a gs:// folder URI.
func NewWriter(store ObjectStore, uri string) (*Writer, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("NewWriter: %w", err)
	}
	return &Writer{store: store, bucket: bucket, prefix: prefix}, nil
}

// WriteFile uploads one output file.
func (w *Writer) WriteFile(ctx context.Context, name string, data []byte) error {
	object := ObjectPath(w.prefix, name)
	if err := w.store.WriteObject(ctx, w.bucket, object, data, "text/csv"); err != nil {
		return fmt.Errorf("Writer.WriteFile: %w", err)
	}
	return nil
}

// Location returns the gs:// URI output files are written under.
func (w *Writer) Location() string {
	return scheme + w.bucket + "/" + w.prefix
}
