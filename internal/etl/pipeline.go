package etl

import (
	"context"
	"fmt"
	"log"
	"time"

	"funda-finder/internal/models"
	"funda-finder/internal/reconcile"
	"funda-finder/internal/runs"
	"funda-finder/internal/source"
	"funda-finder/internal/validation"
)

// RunResult is what a caller gets back from every run, successful or not
type RunResult struct {
	RunID            string       `json:"run_id"`
	Scope            models.Scope `json:"scope"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
	Found            int          `json:"found"`
	New              int          `json:"new"`
	Updated          int          `json:"updated"`
	Inactive         int          `json:"inactive"`
	ValidationErrors int          `json:"validation_errors"`
	DBErrors         int          `json:"db_errors"`
	Success          bool         `json:"success"`
	ErrorMessage     string       `json:"error_message,omitempty"`
}

func (r *RunResult) counts() runs.Counts {
	return runs.Counts{
		Found:            r.Found,
		New:              r.New,
		Updated:          r.Updated,
		Inactive:         r.Inactive,
		ValidationErrors: r.ValidationErrors,
		DBErrors:         r.DBErrors,
	}
}

// Indexer is notified after a scope was reconciled successfully
type Indexer interface {
	IndexScope(ctx context.Context, scope models.Scope) error
}

// Options configures a Pipeline
type Options struct {
	Indexer Indexer
	Now     func() time.Time
}

// Pipeline runs source → validator → reconciler for one scope at a time and
// records each run with the tracker
type Pipeline struct {
	source     source.Source
	reconciler *reconcile.Reconciler
	tracker    *runs.Tracker
	indexer    Indexer
	now        func() time.Time
}

// NewPipeline wires a pipeline
func NewPipeline(src source.Source, reconciler *reconcile.Reconciler, tracker *runs.Tracker, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		source:     src,
		reconciler: reconciler,
		tracker:    tracker,
		indexer:    opts.Indexer,
		now:        opts.Now,
	}
}

// Run executes one run for filters.City and filters.ListingType. It never
// returns an error: failures are reported in the RunResult and on the run
// record, which is always finalized, even after a panic or cancellation.
func (p *Pipeline) Run(ctx context.Context, filters source.Filters) (result RunResult) {
	scope := models.Scope{City: filters.City, ListingType: filters.ListingType}
	result.Scope = scope
	result.StartedAt = validation.NormalizeTime(p.now())

	run, err := p.tracker.Start(ctx, scope)
	if err != nil {
		result.FinishedAt = validation.NormalizeTime(p.now())
		result.ErrorMessage = err.Error()
		log.Printf("Pipeline: could not start run for %s: %v", scope, err)
		return result
	}
	result.RunID = run.RunID
	result.StartedAt = run.StartedAt

	// Finalizing must outlive a cancelled caller
	finalCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Pipeline: run %s panicked: %v", run.RunID, r)
			result.Success = false
			result.ErrorMessage = fmt.Sprintf("panic: %v", r)
			if err := p.tracker.Fail(finalCtx, run.RunID, result.counts(), result.ErrorMessage); err != nil {
				log.Printf("Pipeline: failed to finalize run %s: %v", run.RunID, err)
			}
		}
		result.FinishedAt = validation.NormalizeTime(p.now())
	}()

	raws, err := p.source.Search(ctx, filters)
	if err != nil {
		return p.fail(finalCtx, result, fmt.Errorf("source failed: %w", err))
	}
	result.Found = len(raws)
	if err := p.tracker.RecordFound(ctx, run.RunID, result.Found); err != nil {
		log.Printf("Pipeline: failed to record found count for %s: %v", run.RunID, err)
	}

	listings, rejected := validation.ValidateBatch(raws, p.now())
	result.ValidationErrors = len(rejected)
	p.checkpoint(ctx, &result)

	load, err := p.reconciler.Reconcile(ctx, scope, listings)
	if load != nil {
		result.New = load.New
		result.Updated = load.Updated
		result.Inactive = load.Inactive
		result.DBErrors = load.DBErrors
	}
	if err != nil {
		return p.fail(finalCtx, result, fmt.Errorf("load failed: %w", err))
	}
	p.checkpoint(ctx, &result)

	if err := p.tracker.Finish(finalCtx, run.RunID, result.counts()); err != nil {
		result.ErrorMessage = err.Error()
		log.Printf("Pipeline: failed to finalize run %s: %v", run.RunID, err)
		return result
	}
	result.Success = true

	if p.indexer != nil {
		if err := p.indexer.IndexScope(ctx, scope); err != nil {
			log.Printf("Pipeline: indexing %s failed: %v", scope, err)
		}
	}
	return result
}

// checkpoint writes the counts reached so far to the run record
func (p *Pipeline) checkpoint(ctx context.Context, result *RunResult) {
	if err := p.tracker.Update(ctx, result.RunID, result.counts()); err != nil {
		log.Printf("Pipeline: failed to update run %s: %v", result.RunID, err)
	}
}

func (p *Pipeline) fail(ctx context.Context, result RunResult, cause error) RunResult {
	result.Success = false
	result.ErrorMessage = cause.Error()
	log.Printf("Pipeline: run %s for %s failed: %v", result.RunID, result.Scope, cause)
	if err := p.tracker.Fail(ctx, result.RunID, result.counts(), result.ErrorMessage); err != nil {
		log.Printf("Pipeline: failed to finalize run %s: %v", result.RunID, err)
	}
	return result
}

// RunBatch runs every city × listing type combination in order. base
// supplies price bounds and the result cap; its city and type are ignored.
// A cancelled context stops the batch before the next scope starts.
func (p *Pipeline) RunBatch(ctx context.Context, cities []string, types []models.ListingType, base source.Filters) []RunResult {
	results := make([]RunResult, 0, len(cities)*len(types))
	for _, city := range cities {
		for _, lt := range types {
			if ctx.Err() != nil {
				log.Printf("Pipeline: batch cancelled, %d of %d scopes done", len(results), len(cities)*len(types))
				return results
			}
			filters := base
			filters.City = city
			filters.ListingType = lt
			results = append(results, p.Run(ctx, filters))
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	log.Printf("Pipeline: batch finished, %d/%d scopes succeeded", succeeded, len(results))
	return results
}
