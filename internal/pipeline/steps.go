package pipeline

import (
	"context"
	"fmt"
	"time"

	infra "github.com/dvloznov/opa-taxengine/internal/infra/bigquery"
	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/schema"
	"github.com/dvloznov/opa-taxengine/internal/table"
	"github.com/dvloznov/opa-taxengine/internal/tax"
)

// PipelineStep represents a single step in the tax pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	SourceURI string
	OutputURI string
	RunID     string

	Tables map[ingest.Dataset]*table.Table
	Inputs tax.Inputs
	Result *tax.Result
}

// Stats counts fact rows and non-coverage findings. It is zero until the
// compute step has run.
func (s *PipelineState) Stats() infra.RunStats {
	if s.Result == nil {
		return infra.RunStats{}
	}
	stats := infra.RunStats{Transactions: len(s.Result.Facts.Rows)}
	for _, f := range s.Result.Validation.Findings() {
		if f.Check != tax.CheckCoverage {
			stats.Findings++
		}
	}
	return stats
}

// Step 1: StartRunStep records the run as RUNNING.
type StartRunStep struct {
	Recorder RunRecorder
	Mode     tax.Mode
}

func (s *StartRunStep) Name() string { return "start run" }

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	runID, err := s.Recorder.StartRun(ctx, state.SourceURI, state.OutputURI, s.Mode.String())
	if err != nil {
		return err
	}
	state.RunID = runID
	return nil
}

// Step 2: LoadSourcesStep reads the four datasets. A missing dataset stops
// the run before the engine is invoked.
type LoadSourcesStep struct {
	Source SourceReader
}

func (s *LoadSourcesStep) Name() string { return "load sources" }

func (s *LoadSourcesStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Tables = make(map[ingest.Dataset]*table.Table, len(ingest.Datasets))
	for _, ds := range ingest.Datasets {
		t, err := s.Source.ReadTable(ctx, ds)
		if err != nil {
			return fmt.Errorf("loading %s: %w", ds, err)
		}
		state.Tables[ds] = t
		log.Info().Str("dataset", string(ds)).Int("rows", t.Len()).Msg("Loaded dataset")
	}
	return nil
}

// Step 3: CanonicalizeStep renames columns to their canonical names and
// decodes the tables into engine inputs.
type CanonicalizeStep struct {
	Aliases  map[ingest.Dataset]schema.AliasSet
	Location *time.Location
}

func (s *CanonicalizeStep) Name() string { return "canonicalize" }

func (s *CanonicalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	canon := make(map[ingest.Dataset]*table.Table, len(state.Tables))
	for _, ds := range ingest.Datasets {
		t, ok := state.Tables[ds]
		if !ok {
			return fmt.Errorf("dataset %s was not loaded", ds)
		}
		aliases := s.Aliases[ds]
		if aliases == nil {
			aliases = defaultAliases[ds]
		}
		canon[ds] = schema.Canonicalize(t, aliases)

		for _, col := range requiredColumns[ds] {
			if !canon[ds].Has(col) {
				log.Warn().Str("dataset", string(ds)).Str("column", col).Msg("Required column missing; values treated as blank")
			}
		}
	}

	state.Inputs = tax.Inputs{
		Transactions: schema.Transactions(canon[ingest.DatasetOrders]),
		TaxClasses:   schema.TaxClasses(canon[ingest.DatasetTaxClass]),
		Machines:     schema.Machines(canon[ingest.DatasetMachineMap]),
		Rates:        schema.Rates(canon[ingest.DatasetRates], s.Location),
	}
	return nil
}

var defaultAliases = map[ingest.Dataset]schema.AliasSet{
	ingest.DatasetOrders:     schema.TransactionAliases,
	ingest.DatasetTaxClass:   schema.TaxClassAliases,
	ingest.DatasetMachineMap: schema.MachineAliases,
	ingest.DatasetRates:      schema.RateAliases,
}

var requiredColumns = map[ingest.Dataset][]string{
	ingest.DatasetOrders:     {schema.ColTxnDate, schema.ColDevice, schema.ColSKU, schema.ColNetSales},
	ingest.DatasetTaxClass:   {schema.ColSKU, schema.ColClass, schema.ColTaxability},
	ingest.DatasetMachineMap: {schema.ColDevice, schema.ColJurisdiction},
	ingest.DatasetRates:      {schema.ColJurisdiction, schema.ColComponent, schema.ColRate, schema.ColRateFrom, schema.ColRateTo},
}

// Step 4: ComputeStep runs the tax engine and logs its data-quality findings.
type ComputeStep struct {
	Options tax.Options
}

func (s *ComputeStep) Name() string { return "compute" }

func (s *ComputeStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Result = tax.Compute(state.Inputs, s.Options)

	v := state.Result.Validation
	for _, f := range v.Findings() {
		if f.Check == tax.CheckCoverage {
			continue
		}
		log.Warn().Str("check", f.Check).Str("value", f.Value).Str("detail", f.Detail).Msg("Data quality finding")
	}
	log.Info().
		Int("transactions", v.Coverage.Transactions).
		Int("class_resolved", v.Coverage.ClassResolved).
		Int("jurisdiction_resolved", v.Coverage.JurisdictionResolved).
		Int("taxed", v.Coverage.Taxed).
		Int("jurisdictions", len(state.Result.Summary)).
		Msg("Computed sales tax")
	return nil
}

// Step 5: WriteOutputsStep hands the result to every writer in order.
type WriteOutputsStep struct {
	Writers []OutputWriter
}

func (s *WriteOutputsStep) Name() string { return "write outputs" }

func (s *WriteOutputsStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, w := range s.Writers {
		if err := w.WriteResult(ctx, state.RunID, state.Result); err != nil {
			return err
		}
	}
	return nil
}

// Step 6: MarkSuccessStep marks the run as SUCCESS.
type MarkSuccessStep struct {
	Recorder RunRecorder
}

func (s *MarkSuccessStep) Name() string { return "mark success" }

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	return s.Recorder.MarkRunSucceeded(ctx, state.RunID, state.Stats())
}
