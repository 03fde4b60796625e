package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Warming strategies.
const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
)

// WarmFunc pre-populates one cache and returns how many items it stored.
type WarmFunc func(ctx context.Context) (int, error)

// WarmerOptions configures a Warmer.
type WarmerOptions struct {
	Enabled  bool
	Strategy string
	// Timeout applies to each warmer on its own, not to the whole pass.
	Timeout time.Duration
	// MaxConcurrency caps parallel warmers; zero means no cap.
	MaxConcurrency int
}

// WarmRecorder is optionally supplied to a Warmer to record per-warmer
// outcomes.
type WarmRecorder interface {
	CacheWarm(name string, success bool, duration time.Duration, items int)
}

// WarmingResult is the outcome of a single warmer.
type WarmingResult struct {
	Name        string
	Success     bool
	Duration    time.Duration
	ItemsCached int
	Err         error
}

// WarmingReport summarises a warm-up pass. Results keep registration order.
type WarmingReport struct {
	Results  []WarmingResult
	Duration time.Duration
}

func (r WarmingReport) SuccessfulCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

func (r WarmingReport) FailedCount() int {
	return len(r.Results) - r.SuccessfulCount()
}

func (r WarmingReport) TotalItemsCached() int {
	n := 0
	for _, res := range r.Results {
		n += res.ItemsCached
	}
	return n
}

type namedWarmer struct {
	name string
	fn   WarmFunc
}

// Warmer runs registered warm functions at startup. A failing, panicking or
// slow warmer is recorded in its own result and never affects the others.
type Warmer struct {
	mu       sync.Mutex
	warmers  []namedWarmer
	opts     WarmerOptions
	recorder WarmRecorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewWarmer creates a Warmer. recorder may be nil.
func NewWarmer(svc *Service, opts WarmerOptions, recorder WarmRecorder) *Warmer {
	if opts.Strategy == "" {
		opts.Strategy = StrategyParallel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Warmer{
		opts:     opts,
		recorder: recorder,
		logger:   svc.logger.Named("warmer"),
		tracer:   svc.tracer,
	}
}

// Register adds a warmer. Registering a name twice replaces the earlier
// function but keeps its position.
func (w *Warmer) Register(name string, fn WarmFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.warmers {
		if w.warmers[i].name == name {
			w.warmers[i].fn = fn
			return
		}
	}
	w.warmers = append(w.warmers, namedWarmer{name: name, fn: fn})
}

// Names returns the registered warmer names in order.
func (w *Warmer) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.warmers))
	for i, nw := range w.warmers {
		names[i] = nw.name
	}
	return names
}

// WarmAll runs every registered warmer using the configured strategy. When
// warming is disabled it returns an empty report without running anything.
func (w *Warmer) WarmAll(ctx context.Context) WarmingReport {
	if !w.opts.Enabled {
		w.logger.Info("Cache warming disabled")
		return WarmingReport{}
	}

	w.mu.Lock()
	warmers := make([]namedWarmer, len(w.warmers))
	copy(warmers, w.warmers)
	w.mu.Unlock()

	ctx, span := w.tracer.Start(ctx, "cache.warm",
		trace.WithAttributes(
			attribute.String("cache.warm.strategy", w.opts.Strategy),
			attribute.Int("cache.warm.warmers", len(warmers)),
		),
	)
	defer span.End()

	start := time.Now()
	results := make([]WarmingResult, len(warmers))

	if w.opts.Strategy == StrategySequential {
		for i, nw := range warmers {
			results[i] = w.run(ctx, nw)
		}
	} else {
		var g errgroup.Group
		if w.opts.MaxConcurrency > 0 {
			g.SetLimit(w.opts.MaxConcurrency)
		}
		for i, nw := range warmers {
			i, nw := i, nw
			g.Go(func() error {
				results[i] = w.run(ctx, nw)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := WarmingReport{Results: results, Duration: time.Since(start)}
	span.SetAttributes(
		attribute.Int("cache.warm.successful", report.SuccessfulCount()),
		attribute.Int("cache.warm.failed", report.FailedCount()),
	)
	w.logger.Info("Cache warming completed",
		zap.String("strategy", w.opts.Strategy),
		zap.Int("successful", report.SuccessfulCount()),
		zap.Int("failed", report.FailedCount()),
		zap.Int("items_cached", report.TotalItemsCached()),
		zap.Duration("duration", report.Duration),
	)
	return report
}

type warmOutcome struct {
	items int
	err   error
}

func (w *Warmer) run(ctx context.Context, nw namedWarmer) WarmingResult {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan warmOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- warmOutcome{err: fmt.Errorf("warmer panicked: %v", p)}
			}
		}()
		items, err := nw.fn(ctx)
		done <- warmOutcome{items: items, err: err}
	}()

	var out warmOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", w.opts.Timeout, err)
		}
		out = warmOutcome{err: err}
	}

	res := WarmingResult{
		Name:     nw.name,
		Success:  out.err == nil,
		Duration: time.Since(start),
		Err:      out.err,
	}
	if res.Success {
		res.ItemsCached = out.items
		w.logger.Debug("Cache warmer completed",
			zap.String("warmer", nw.name),
			zap.Int("items", out.items),
			zap.Duration("duration", res.Duration),
		)
	} else {
		w.logger.Warn("Cache warmer failed",
			zap.String("warmer", nw.name),
			zap.Duration("duration", res.Duration),
			zap.Error(out.err),
		)
	}
	if w.recorder != nil {
		w.recordSafely(res)
	}
	return res
}

func (w *Warmer) recordSafely(res WarmingResult) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Warn("Warm recorder panicked", zap.Any("panic", p))
		}
	}()
	w.recorder.CacheWarm(res.Name, res.Success, res.Duration, res.ItemsCached)
}
