// Package report runs tax report jobs: fetch → classify → price → compute → store.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"chain-tax-lab/internal/address"
	"chain-tax-lab/internal/classifier"
	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/idhash"
	"chain-tax-lab/internal/ingestion"
	"chain-tax-lab/internal/ledger"
	"chain-tax-lab/internal/observability"
	"chain-tax-lab/internal/pricing"
	"chain-tax-lab/internal/storage"
	"chain-tax-lab/internal/storage/memory"
	"chain-tax-lab/internal/taxengine"
)

// Stage names, in execution order.
const (
	StageFetch    = "fetch"
	StageClassify = "classify"
	StagePrice    = "price"
	StageCompute  = "compute"
	StageStore    = "store"
)

// Collector returns the raw transactions of a request in deterministic order.
type Collector interface {
	Collect(ctx context.Context, req ingestion.FetchRequest) ([]*domain.RawTransaction, error)
}

// FactSink receives the classified events of a completed job for analytics.
type FactSink interface {
	InsertFacts(ctx context.Context, jobID string, events []*domain.ClassifiedEvent) error
}

// Options configures a Runner.
type Options struct {
	// Required
	Collector  Collector
	Classifier *classifier.Classifier
	Prices     pricing.PriceLookup

	// NewLotStore returns an empty lot store for one job. Defaults to in-memory stores.
	NewLotStore func(jobID string) storage.LotStore

	// Optional stores
	Jobs   storage.JobStore // defaults to an in-memory store
	Events storage.EventStore
	Facts  FactSink

	Rates   taxengine.Rates // DefaultRates() if zero
	Workers int             // classification and pricing fan-out, default 4
	Clock   func() time.Time

	// Progress is called after each classified transaction.
	Progress func(done, total int)

	Logger *zerolog.Logger
}

// Request describes one report.
type Request struct {
	Address     string
	Network     string
	PeriodStart int64 // ms, inclusive
	PeriodEnd   int64 // ms, inclusive, 0 means unbounded
	FromBlock   int64 // history to fetch; lots before the period need it
	ToBlock     int64 // 0 means latest
	Unrealized  taxengine.UnrealizedMode
}

// Result contains the outcome of one job. Callers joining an in-flight job share it
// and must not modify it.
type Result struct {
	Job      *domain.ReportJob
	Summary  *domain.TaxSummary
	Events   []*domain.ClassifiedEvent
	Lots     []*domain.CostLot
	Unpriced int      // token legs and gas fees left without a USD value
	Stored   int      // events newly written to the event store
	Errors   []string // per-event failures; the job still completes
}

// Runner executes report jobs. Concurrent runs of the same
// (address, network, period) share one execution.
type Runner struct {
	collector   Collector
	classifier  *classifier.Classifier
	enricher    *pricing.Enricher
	prices      pricing.PriceLookup
	newLotStore func(jobID string) storage.LotStore
	jobs        storage.JobStore
	events      storage.EventStore
	facts       FactSink
	rates       taxengine.Rates
	workers     int
	clock       func() time.Time
	progress    func(done, total int)
	base        zerolog.Logger
	logger      zerolog.Logger

	group singleflight.Group
}

// NewRunner creates a runner. It rejects invalid rates before any job starts.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Collector == nil || opts.Classifier == nil || opts.Prices == nil {
		return nil, errors.New("report: collector, classifier and prices are required")
	}

	rates := opts.Rates
	if rates == (taxengine.Rates{}) {
		rates = taxengine.DefaultRates()
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}

	// components built here label their own lines, so they get the unlabeled logger
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}

	r := &Runner{
		collector:   opts.Collector,
		classifier:  opts.Classifier,
		enricher:    pricing.NewEnricher(opts.Prices, &base),
		prices:      opts.Prices,
		newLotStore: opts.NewLotStore,
		jobs:        opts.Jobs,
		events:      opts.Events,
		facts:       opts.Facts,
		rates:       rates,
		workers:     opts.Workers,
		clock:       opts.Clock,
		progress:    opts.Progress,
		base:        base,
		logger:      base.With().Str("component", "report").Logger(),
	}
	if r.newLotStore == nil {
		r.newLotStore = func(string) storage.LotStore { return memory.NewLotStore() }
	}
	if r.jobs == nil {
		r.jobs = memory.NewJobStore()
	}
	if r.workers < 1 {
		r.workers = 4
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r, nil
}

// Run executes the job for req, or joins the identical job already in flight.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	addr, err := address.NormalizeWallet(req.Network, req.Address)
	if err != nil {
		return nil, err
	}
	if addr == "" || req.Network == "" {
		return nil, fmt.Errorf("%w: address and network are required", storage.ErrInvalidInput)
	}
	if req.PeriodEnd > 0 && req.PeriodEnd < req.PeriodStart {
		return nil, fmt.Errorf("%w: period ends before it starts", storage.ErrInvalidInput)
	}
	if req.Unrealized == "" {
		req.Unrealized = taxengine.UnrealizedNone
	}
	if _, err := taxengine.ParseUnrealizedMode(string(req.Unrealized)); err != nil {
		return nil, err
	}
	req.Address = addr

	key := idhash.ComputeJobKey(req.Address, req.Network, req.PeriodStart, req.PeriodEnd,
		req.FromBlock, req.ToBlock, string(req.Unrealized))
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.run(ctx, req)
	})
	if shared {
		observability.RecordReportDeduped()
		r.logger.Debug().Str("address", req.Address).Msg("joined in-flight report")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	now := r.clock().UnixMilli()
	job := &domain.ReportJob{
		JobID:       uuid.NewString(),
		Address:     req.Address,
		Network:     req.Network,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.jobs.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	logger := r.logger.With().Str("job_id", job.JobID).Str("address", req.Address).Str("network", req.Network).Logger()
	logger.Info().Msg("report started")

	result, err := r.execute(ctx, job, req, logger)
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.Error = err.Error()
		r.saveJob(ctx, job, logger)
		observability.RecordReportRun(string(domain.JobStatusFailed))
		logger.Error().Err(err).Str("stage", job.Stage).Msg("report failed")
		return nil, fmt.Errorf("report %s stage %s: %w", job.JobID, job.Stage, err)
	}

	job.Status = domain.JobStatusCompleted
	job.Events = len(result.Events)
	job.Errors = len(result.Errors)
	r.saveJob(ctx, job, logger)
	observability.RecordReportRun(string(domain.JobStatusCompleted))

	logger.Info().
		Int("events", job.Events).
		Int("errors", job.Errors).
		Int("unpriced", result.Unpriced).
		Msg("report completed")

	result.Job = job
	return result, nil
}

func (r *Runner) execute(ctx context.Context, job *domain.ReportJob, req Request, logger zerolog.Logger) (*Result, error) {
	result := &Result{}
	job.Status = domain.JobStatusRunning

	// Stage 1: fetch
	var txs []*domain.RawTransaction
	err := r.stage(ctx, job, StageFetch, logger, func() error {
		var err error
		txs, err = r.collector.Collect(ctx, ingestion.FetchRequest{
			Network:   req.Network,
			Address:   req.Address,
			FromBlock: req.FromBlock,
			ToBlock:   req.ToBlock,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Int("transactions", len(txs)).Msg("transactions fetched")

	// Stage 2: classify
	err = r.stage(ctx, job, StageClassify, logger, func() error {
		var err error
		result.Events, err = r.classify(ctx, txs, req.Address)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Stage 3: price
	err = r.stage(ctx, job, StagePrice, logger, func() error {
		var err error
		result.Unpriced, err = r.enricher.EnrichAll(ctx, result.Events, r.workers)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Stage 4: compute
	var l *ledger.Ledger
	err = r.stage(ctx, job, StageCompute, logger, func() error {
		jobLogger := r.base.With().Str("job_id", job.JobID).Logger()
		var err error
		l, err = ledger.New(ledger.Options{
			Store:                r.newLotStore(job.JobID),
			Prices:               r.prices,
			HoldingThresholdDays: r.rates.HoldingThresholdDays,
			Logger:               &jobLogger,
		})
		if err != nil {
			return err
		}
		engine, err := taxengine.NewEngine(taxengine.EngineOptions{Ledger: l, Clock: r.clock, Logger: &jobLogger})
		if err != nil {
			return err
		}
		result.Summary, err = engine.Summarize(ctx, req.Address, result.Events, r.rates, taxengine.Options{
			Network:     req.Network,
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
			Unrealized:  req.Unrealized,
		})
		if err != nil {
			return err
		}
		result.Lots, err = l.Lots(ctx, req.Address)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range result.Events {
		if ev.Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("event %s: %s", ev.EventID, ev.Error))
		}
	}

	// Stage 5: store
	err = r.stage(ctx, job, StageStore, logger, func() error {
		var err error
		result.Stored, err = r.storeEvents(ctx, req, result.Events)
		if err != nil {
			return err
		}
		if r.facts != nil {
			if err := r.facts.InsertFacts(ctx, job.JobID, result.Events); err != nil {
				return fmt.Errorf("insert event facts: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// stage marks job as being in stage, runs fn and records its duration.
func (r *Runner) stage(ctx context.Context, job *domain.ReportJob, name string, logger zerolog.Logger, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.Stage = name
	r.saveJob(ctx, job, logger)

	start := time.Now()
	err := fn()
	observability.RecordReportStage(name, time.Since(start).Seconds())
	logger.Debug().Str("stage", name).Dur("took", time.Since(start)).Err(err).Msg("stage finished")
	return err
}

// saveJob persists job's mutable fields. Failures are logged; the job result does not depend on them.
func (r *Runner) saveJob(ctx context.Context, job *domain.ReportJob, logger zerolog.Logger) {
	job.UpdatedAt = r.clock().UnixMilli()
	if err := r.jobs.Update(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("update job")
	}
}

// classify fans transactions out over the worker pool and keeps input order in the output.
func (r *Runner) classify(ctx context.Context, txs []*domain.RawTransaction, user string) ([]*domain.ClassifiedEvent, error) {
	perTx := make([][]*domain.ClassifiedEvent, len(txs))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, tx := range txs {
		i, tx := i, tx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perTx[i] = r.classifier.Classify(gctx, tx, user)
			if r.progress != nil {
				mu.Lock()
				done++
				r.progress(done, len(txs))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []*domain.ClassifiedEvent
	for _, evs := range perTx {
		events = append(events, evs...)
	}
	return events, nil
}

// storeEvents appends the events not stored yet. A stored event is never replaced;
// the first report that classified it wins.
func (r *Runner) storeEvents(ctx context.Context, req Request, events []*domain.ClassifiedEvent) (int, error) {
	if r.events == nil || len(events) == 0 {
		return 0, nil
	}

	existing, err := r.events.GetByAddress(ctx, req.Address, req.Network, 0, math.MaxInt64)
	if err != nil {
		return 0, fmt.Errorf("load stored events: %w", err)
	}
	stored := make(map[string]bool, len(existing))
	for _, e := range existing {
		stored[e.EventID] = true
	}

	var fresh []*domain.ClassifiedEvent
	for _, e := range events {
		if !stored[e.EventID] {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := r.events.InsertBulk(ctx, fresh); err != nil {
		return 0, fmt.Errorf("insert events: %w", err)
	}
	return len(fresh), nil
}
