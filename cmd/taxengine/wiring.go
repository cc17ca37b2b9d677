package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/opa-taxengine/internal/config"
	"github.com/dvloznov/opa-taxengine/internal/export"
	"github.com/dvloznov/opa-taxengine/internal/gcs"
	infraBQ "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/pipeline"
)

// resources owns the clients opened for one command and closes them together.
type resources struct {
	storage *gcs.Client
	repos   map[string]*infraBQ.Repository
	closers []io.Closer
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i].Close()
	}
}

func (r *resources) storageClient(ctx context.Context) (*gcs.Client, error) {
	if r.storage != nil {
		return r.storage, nil
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	r.storage = c
	r.closers = append(r.closers, c)
	return c, nil
}

func (r *resources) openRepository(ctx context.Context, uri string) (*infraBQ.Repository, error) {
	if repo, ok := r.repos[uri]; ok {
		return repo, nil
	}
	repo, err := infraBQ.NewRepositoryFromURI(ctx, uri)
	if err != nil {
		return nil, err
	}
	if r.repos == nil {
		r.repos = make(map[string]*infraBQ.Repository)
	}
	r.repos[uri] = repo
	r.closers = append(r.closers, repo)
	return repo, nil
}

// openSource picks the reader for a folder, gs:// or bq:// location.
func (r *resources) openSource(ctx context.Context, uri string) (pipeline.SourceReader, error) {
	switch {
	case gcs.IsURI(uri):
		c, err := r.storageClient(ctx)
		if err != nil {
			return nil, err
		}
		return gcs.NewSource(c, uri)
	case infraBQ.IsURI(uri):
		return r.openRepository(ctx, uri)
	default:
		return ingest.NewFileSource(uri), nil
	}
}

// openWriters creates one writer per output location.
func (r *resources) openWriters(ctx context.Context, uris []string) ([]pipeline.OutputWriter, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("no output location given")
	}

	writers := make([]pipeline.OutputWriter, 0, len(uris))
	for _, uri := range uris {
		switch {
		case gcs.IsURI(uri):
			c, err := r.storageClient(ctx)
			if err != nil {
				return nil, err
			}
			w, err := gcs.NewWriter(c, uri)
			if err != nil {
				return nil, err
			}
			writers = append(writers, export.NewResultWriter(w))
		case infraBQ.IsURI(uri):
			repo, err := r.openRepository(ctx, uri)
			if err != nil {
				return nil, err
			}
			writers = append(writers, repo)
		default:
			writers = append(writers, export.NewResultWriter(export.DirSink{Dir: uri}))
		}
	}
	return writers, nil
}

func splitOutputs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printReport(w io.Writer, dir string, r *config.Report) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Configuration Validation: %s\n", dir)
	fmt.Fprintln(w, line)

	for _, c := range r.Checks {
		fmt.Fprintf(w, "  ok  %s\n", c)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "   - %s\n", e)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, wn := range r.Warnings {
			fmt.Fprintf(w, "   - %s\n", wn)
		}
	}
	if len(r.Errors) == 0 && len(r.Warnings) == 0 {
		fmt.Fprintln(w, "\nAll configuration files are valid")
	}
	fmt.Fprintln(w, line)
}
