// Package pipeline runs the sales tax engine end to end: it loads the source
// datasets, canonicalizes them, computes tax and writes the outputs while
// keeping the run ledger current.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/opa-taxengine/internal/ingest"
	"github.com/dvloznov/opa-taxengine/internal/logger"
	"github.com/dvloznov/opa-taxengine/internal/schema"
	"github.com/dvloznov/opa-taxengine/internal/tax"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps    []PipelineStep
	recorder RunRecorder
}

// NewPipeline creates a new pipeline with the given steps. When recorder is
// not nil, a failing step marks the run FAILED.
func NewPipeline(recorder RunRecorder, steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, recorder: recorder}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	tagged := false

	for i, step := range p.steps {
		start := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			err = fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
			if p.recorder != nil && state.RunID != "" {
				p.recorder.MarkRunFailed(ctx, state.RunID, err)
			}
			return err
		}
		if !tagged && state.RunID != "" {
			log = logger.WithRun(log, state.RunID)
			ctx = logger.WithContext(ctx, log)
			tagged = true
		}
		log.Debug().Str("step", step.Name()).Dur("elapsed", time.Since(start)).Msg("Step finished")
	}
	return nil
}

// Deps are the collaborators of a tax run.
type Deps struct {
	Source   SourceReader
	Writers  []OutputWriter
	Recorder RunRecorder
}

// Options configures a tax run.
type Options struct {
	SourceURI string
	OutputURI string
	Aliases   map[ingest.Dataset]schema.AliasSet
	Engine    tax.Options
}

// NewTaxPipeline creates the standard six-step pipeline.
func NewTaxPipeline(deps Deps, opts Options) *Pipeline {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = LogRecorder{}
	}
	return NewPipeline(recorder,
		&StartRunStep{Recorder: recorder, Mode: opts.Engine.Mode},
		&LoadSourcesStep{Source: deps.Source},
		&CanonicalizeStep{Aliases: opts.Aliases, Location: opts.Engine.Location},
		&ComputeStep{Options: opts.Engine},
		&WriteOutputsStep{Writers: deps.Writers},
		&MarkSuccessStep{Recorder: recorder},
	)
}

// Run executes one tax run and returns its final state.
func Run(ctx context.Context, deps Deps, opts Options) (*PipelineState, error) {
	state := &PipelineState{SourceURI: opts.SourceURI, OutputURI: opts.OutputURI}
	if err := NewTaxPipeline(deps, opts).Execute(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}
