package main

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// how many messages of each error class are kept for the summary
const thisMany = 3

// counters holds cross-goroutine statistics for one run.
type counters struct {
	processed      atomic.Int64 // main records forwarded by the normalizer
	parseErrors    atomic.Int64 // lines the parser skipped
	rejected       atomic.Int64 // records dropped by coercion or a missing key
	factWritten    atomic.Int64 // fact rows written (or counted on dry runs)
	dimensionRows  atomic.Int64 // dimension rows written
	batches        atomic.Int64 // write batches flushed
	existingLoaded atomic.Int64 // rows read back from dimension tables
}

// Summary is the outcome of a run.
type Summary struct {
	RunID          string
	Processed      int64
	ParseErrors    int64
	Rejected       int64
	FactWritten    int64
	DimensionRows  int64
	Batches        int64
	ExistingLoaded int64
	DryRun         bool
}

func (c *counters) summary(runID string, dryRun bool) Summary {
	return Summary{
		RunID:          runID,
		Processed:      c.processed.Load(),
		ParseErrors:    c.parseErrors.Load(),
		Rejected:       c.rejected.Load(),
		FactWritten:    c.factWritten.Load(),
		DimensionRows:  c.dimensionRows.Load(),
		Batches:        c.batches.Load(),
		ExistingLoaded: c.existingLoaded.Load(),
		DryRun:         dryRun,
	}
}

// errAgg keeps a count and the first few messages of one error class.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) log(log *zap.Logger, what string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return
	}
	log.Warn(what, zap.Int("count", a.count), zap.Int("shown", len(a.first)))
	for i, s := range a.first {
		log.Warn(what+": sample", zap.Int("n", i+1), zap.String("error", s))
	}
}

// logGlobalSummary prints the final statistics of the run.
//
// For the main resource:
//
//	processed + rejected == records the parser produced
//	fact_written == processed (update mode may collapse duplicate keys)
func logGlobalSummary(log *zap.Logger, s Summary) {
	log.Info("summary",
		zap.Bool("dry_run", s.DryRun),
		zap.Int64("processed", s.Processed),
		zap.Int64("parse_errors", s.ParseErrors),
		zap.Int64("rejected", s.Rejected),
		zap.Int64("existing_loaded", s.ExistingLoaded),
		zap.Int64("fact_written", s.FactWritten),
		zap.Int64("dimension_written", s.DimensionRows),
		zap.Int64("batches", s.Batches),
	)
	if s.FactWritten > s.Processed {
		log.Warn("row accounting mismatch",
			zap.Int64("processed", s.Processed),
			zap.Int64("fact_written", s.FactWritten),
		)
	}
}
