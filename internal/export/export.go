// Package export renders engine results as CSV files and hands them to a
// file sink (a local folder or a Cloud Storage prefix).
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/tax"
	"github.com/shopspring/decimal"
)

// Output file names.
const (
	FactFile          = "OPA_SalesTax_Fact.csv"
	SummaryFile       = "OPA_SalesTax_Summary.csv"
	PeriodSummaryFile = "OPA_SalesTax_Summary_By_Period.csv"
	ValidationFile    = "OPA_SalesTax_Validation.csv"
)

// File is one rendered output file.
type File struct {
	Name string
	Data []byte
}

// FileSink stores rendered files.
type FileSink interface {
	WriteFile(ctx context.Context, name string, data []byte) error
}

// Render encodes a result into its output files. The period summary file is
// only produced when the result carries one.
func Render(res *tax.Result) ([]File, error) {
	type renderer struct {
		name  string
		write func(*csv.Writer) error
	}
	renderers := []renderer{
		{FactFile, func(w *csv.Writer) error { return WriteFacts(w, res.Facts) }},
		{SummaryFile, func(w *csv.Writer) error { return WriteSummary(w, res.Summary) }},
	}
	if res.PeriodSummary != nil {
		renderers = append(renderers, renderer{PeriodSummaryFile, func(w *csv.Writer) error {
			return WritePeriodSummary(w, res.PeriodSummary)
		}})
	}
	renderers = append(renderers, renderer{ValidationFile, func(w *csv.Writer) error {
		return WriteValidation(w, res.Validation)
	}})

	files := make([]File, 0, len(renderers))
	for _, r := range renderers {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := r.write(w); err != nil {
			return nil, fmt.Errorf("Render: %s: %w", r.name, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("Render: %s: %w", r.name, err)
		}
		files = append(files, File{Name: r.name, Data: buf.Bytes()})
	}
	return files, nil
}

// ResultWriter renders results and stores every file in a sink.
type ResultWriter struct {
	sink FileSink
}

// NewResultWriter creates a ResultWriter backed by sink.
func NewResultWriter(sink FileSink) *ResultWriter {
	return &ResultWriter{sink: sink}
}

// WriteResult renders res and writes each file to the sink.
func (rw *ResultWriter) WriteResult(ctx context.Context, runID string, res *tax.Result) error {
	log := logger.FromContext(ctx)

	files, err := Render(res)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := rw.sink.WriteFile(ctx, f.Name, f.Data); err != nil {
			return fmt.Errorf("WriteResult: %w", err)
		}
		log.Info().Str("run_id", runID).Str("file", f.Name).Int("bytes", len(f.Data)).Msg("Wrote output")
	}
	return nil
}

// DirSink writes files into a local folder, creating it when needed.
type DirSink struct {
	Dir string
}

// WriteFile writes data to Dir/name.
func (d DirSink) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("DirSink.WriteFile: creating %s: %w", d.Dir, err)
	}
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("DirSink.WriteFile: %w", err)
	}
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func date(d civil.Date) string {
	if !d.IsValid() {
		return ""
	}
	return d.String()
}
