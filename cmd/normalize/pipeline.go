// This file wires one normalize run end to end: existing dimension rows are
// read back, the source is parsed and coerced, groups are factored out, and
// the fact and dimension tables are written in batches. The CLI layer stays
// thin: it depends only on storage-agnostic interfaces and never imports
// database drivers directly.

package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"normalize/internal/config"
	"normalize/internal/datasource"
	"normalize/internal/kvstore"
	"normalize/internal/logger"
	"normalize/internal/metrics"
	"normalize/internal/normalize"
	"normalize/internal/parser"
	"normalize/internal/records"
	"normalize/internal/storage"
	"normalize/internal/transformer"
)

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	openSourceFn = datasource.Open

	storeFactoryFn = kvstore.Factory

	newRunID = uuid.NewString
)

// dimension is one group with its resolved table and dimension schema.
type dimension struct {
	group  normalize.Group
	schema records.Schema
}

type runner struct {
	p     config.Pipeline
	log   *zap.Logger
	repo  storage.Repository // nil on dry runs
	stats counters

	parseAgg  *errAgg
	rejectAgg *errAgg
}

// runPipeline executes p once. Bad input rows are dropped and summarized
// (fail-soft); configuration, store and database errors abort the run.
func runPipeline(ctx context.Context, p config.Pipeline, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	runID := newRunID()
	r := &runner{
		p:         p,
		log:       logger.WithRun(log, p.Job, runID),
		parseAgg:  newErrAgg(thisMany),
		rejectAgg: newErrAgg(thisMany),
	}

	start := time.Now()
	err := r.run(ctx)

	r.parseAgg.log(r.log, "parse errors")
	r.rejectAgg.log(r.log, "rejected records")
	s := r.stats.summary(runID, r.repo == nil)
	logGlobalSummary(r.log, s)

	metrics.RecordRow(p.Job, "processed", s.Processed)
	metrics.RecordRow(p.Job, "parse_errors", s.ParseErrors)
	metrics.RecordRow(p.Job, "rejected", s.Rejected)
	metrics.RecordRow(p.Job, "fact_written", s.FactWritten)
	metrics.RecordRow(p.Job, "dimension_written", s.DimensionRows)
	metrics.RecordBatches(p.Job, s.Batches)
	metrics.RecordStep(p.Job, "run", err, time.Since(start))

	if err != nil {
		return s, err
	}
	r.log.Info("completed", zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	return s, nil
}

func (r *runner) run(ctx context.Context) error {
	if r.p.Persist() {
		repo, err := initRepository(ctx, r.p, r.log)
		if err != nil {
			return err
		}
		defer repo.Close()
		r.repo = repo
	} else {
		r.log.Info("storage disabled; dry run")
	}

	fact, dims := plan(r.p)

	if r.repo != nil && r.p.Storage.DB.AutoCreateTable {
		if err := r.step("ensure_tables", func() error { return r.ensureTables(ctx, fact, dims) }); err != nil {
			return err
		}
	}
	if err := r.step("load_existing", func() error { return r.loadExisting(ctx, dims) }); err != nil {
		return err
	}

	rc, err := openSourceFn(ctx, r.p.Source)
	if err != nil {
		return fmt.Errorf("source open: %w", err)
	}
	defer rc.Close()

	res, err := r.stream(ctx, rc, dims)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			r.log.Warn("close stores", zap.Error(err))
		}
	}()

	err = r.step("write_fact", func() error { return r.writeFact(ctx, res.Fact(), fact) })
	r.stats.processed.Store(res.Processed())
	if err != nil {
		return err
	}
	for _, ix := range res.Indexers {
		st := ix.Stats()
		ref := ix.Group().RefField
		metrics.RecordKeys(r.p.Job, ref, "existing", st.Existing)
		metrics.RecordKeys(r.p.Job, ref, "created", st.Created)
		metrics.RecordKeys(r.p.Job, ref, "reused", st.Reused)
		r.log.Info("group keys",
			zap.String("ref", ref),
			zap.Int64("existing", st.Existing),
			zap.Int64("created", st.Created),
			zap.Int64("reused", st.Reused),
		)
	}

	return r.step("write_dimensions", func() error { return r.writeDimensions(ctx, res.Dimensions(), dims) })
}

// step runs fn and records its duration and outcome.
func (r *runner) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.RecordStep(r.p.Job, name, err, elapsed)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	r.log.Debug("step done", zap.String("step", name), zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)))
	return nil
}

// initRepository constructs the storage repository from the pipeline and
// returns a backend-agnostic Repository.
func initRepository(ctx context.Context, p config.Pipeline, log *zap.Logger) (storage.Repository, error) {
	log.Info("connecting to storage", zap.String("kind", p.Storage.Kind), zap.String("table", p.Storage.DB.Table))
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind: p.Storage.Kind,
		DSN:  p.Storage.DB.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

// plan resolves the fact schema and one dimension per configured group. The
// rewrite is applied group by group, exactly as the normalizer does it.
func plan(p config.Pipeline) (records.Schema, []dimension) {
	base := p.Storage.DB.Table
	if base == "" {
		base = p.Resource.Name
	}

	schema := p.Resource.Schema.Clone()
	dims := make([]dimension, 0, len(p.Normalize.Groups))
	for _, g := range p.Normalize.Groups {
		table := g.Table
		if table == "" {
			table = normalize.DefaultTable(base, g.Ref)
		}
		index := g.Index
		if index == "" {
			index = "id"
		}
		rw := records.RewriteSchema(schema, g.Fields, g.Ref)
		dims = append(dims, dimension{
			group: normalize.Group{
				Fields:     slices.Clone(g.Fields),
				RefField:   g.Ref,
				IndexField: index,
				Table:      table,
			},
			schema: records.DimensionSchema(index, rw),
		})
		schema = rw.Main
	}
	// without a declared key the references alone do not identify a fact row
	if len(p.Resource.Schema.PrimaryKey) == 0 {
		schema.PrimaryKey = nil
	}
	return schema, dims
}

func (r *runner) ensureTables(ctx context.Context, fact records.Schema, dims []dimension) error {
	if err := storage.EnsureTable(ctx, r.p.Storage.Kind, r.repo, r.p.Storage.DB.Table, fact); err != nil {
		return err
	}
	for _, d := range dims {
		if err := storage.EnsureTable(ctx, r.p.Storage.Kind, r.repo, d.group.Table, d.schema); err != nil {
			return err
		}
	}
	r.log.Info("tables ensured", zap.String("fact", r.p.Storage.DB.Table), zap.Int("dimensions", len(dims)))
	return nil
}

// loadExisting reads every dimension table concurrently. A table that cannot
// be read is treated as empty; rows that no longer fit the dimension schema
// abort the run, since their ids could be handed out again.
func (r *runner) loadExisting(ctx context.Context, dims []dimension) error {
	if r.repo == nil || len(dims) == 0 {
		return nil
	}
	workers := r.p.Runtime.LoadWorkers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range dims {
		d := &dims[i]
		g.Go(func() error {
			rows, err := r.repo.LoadRows(gctx, d.group.Table, d.schema.FieldNames())
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.log.Warn("load existing: treating table as empty", zap.String("table", d.group.Table), zap.Error(err))
				return nil
			}
			p := transformer.Compile(d.schema, r.coerceSpec())
			for _, row := range rows {
				if err := p.Apply(row); err != nil {
					return fmt.Errorf("existing row of %s: %w", d.group.Table, err)
				}
			}
			d.group.ExistingRows = rows
			r.stats.existingLoaded.Add(int64(len(rows)))
			r.log.Info("load existing: done", zap.String("table", d.group.Table), zap.Int("rows", len(rows)))
			return nil
		})
	}
	return g.Wait()
}

func (r *runner) coerceSpec() transformer.Spec {
	c := r.p.Coerce
	return transformer.Spec{
		Layout:         c.Layout,
		DatetimeLayout: c.DatetimeLayout,
		Truthy:         c.Truthy,
		Falsy:          c.Falsy,
	}
}

// stream builds the record stream (parse, coerce, require keys) and hands
// it to the normalizer together with the groups.
func (r *runner) stream(ctx context.Context, src io.Reader, dims []dimension) (*normalize.Result, error) {
	schema := r.p.Resource.Schema
	rows, err := parser.Rows(ctx, r.p.Parser, src, schema.FieldNames(), r.log, func(line int, err error) {
		r.stats.parseErrors.Add(1)
		r.parseAgg.add(fmt.Sprintf("line=%d: %v", line, err))
	})
	if err != nil {
		return nil, err
	}
	reject := func(_ records.Record, err error) {
		r.stats.rejected.Add(1)
		r.rejectAgg.add(err.Error())
	}
	rows = transformer.Coerce(rows, transformer.Compile(schema, r.coerceSpec()), reject)
	if len(schema.PrimaryKey) > 0 {
		rows = transformer.Require(rows, schema.PrimaryKey, reject)
	}

	stores, err := storeFactoryFn(ctx, kvstore.Config{Kind: r.p.Store.Kind, Dir: r.p.Store.Dir})
	if err != nil {
		return nil, err
	}
	opts := []normalize.Option{normalize.WithStoreFactory(stores), normalize.WithLogger(r.log)}
	if pattern := r.p.Normalize.Resource; pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("normalize.resource: %w", err)
		}
		opts = append(opts, normalize.WithMatcher(normalize.MatchPattern(re)))
	}

	groups := make([]normalize.Group, len(dims))
	for i, d := range dims {
		groups[i] = d.group
	}
	in := normalize.Resource{
		Descriptor: records.Resource{Name: r.p.Resource.Name, Schema: schema},
		Rows:       rows,
	}
	return normalize.Normalize([]normalize.Resource{in}, groups, opts...)
}

// writeFact drains the fact stream into the storage table. Update mode
// upserts on the rewritten key; append mode, or a resource without a key,
// inserts. Dry runs only count.
func (r *runner) writeFact(ctx context.Context, fact normalize.Resource, schema records.Schema) error {
	columns := fact.Descriptor.Schema.FieldNames()
	var keys []string
	if r.p.Storage.DB.Mode != config.ModeAppend {
		keys = schema.PrimaryKey
	}
	n, err := storage.LoadBatches(ctx, columns, fact.Rows, r.batchSize(),
		r.writeFn(r.p.Storage.DB.Table, keys), r.log.With(zap.String("table", r.p.Storage.DB.Table)))
	r.stats.factWritten.Add(n)
	if err != nil {
		return err
	}
	r.log.Info("fact written", zap.String("table", r.p.Storage.DB.Table), zap.Int64("rows", n))
	return nil
}

// writeDimensions upserts every dimension table, keyed by its primary key.
// The main stream is drained at this point, so the stores are read-only and
// the tables are written concurrently.
func (r *runner) writeDimensions(ctx context.Context, out []normalize.Resource, dims []dimension) error {
	workers := r.p.Runtime.LoadWorkers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, res := range out {
		table, keys := dims[i].group.Table, dims[i].schema.PrimaryKey
		g.Go(func() error {
			log := r.log.With(zap.String("table", table))
			n, err := storage.LoadBatches(gctx, res.Descriptor.Schema.FieldNames(), res.Rows, r.batchSize(),
				r.writeFn(table, keys), log)
			r.stats.dimensionRows.Add(n)
			if err != nil {
				return fmt.Errorf("dimension %s: %w", table, err)
			}
			log.Info("dimension written", zap.Int64("rows", n))
			return nil
		})
	}
	return g.Wait()
}

// writeFn returns the batch writer for table. Keyed batches are deduplicated
// first so one statement never touches the same key twice.
func (r *runner) writeFn(table string, keys []string) storage.WriteFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		if r.repo == nil {
			r.stats.batches.Add(1)
			return int64(len(rows)), nil
		}
		if len(keys) > 0 {
			rows = transformer.DedupRows(rows, keyIndexes(columns, keys), transformer.KeepLast)
		}
		n, err := r.repo.Write(ctx, table, columns, keys, rows)
		if err != nil {
			return n, err
		}
		r.stats.batches.Add(1)
		return n, nil
	}
}

func (r *runner) batchSize() int {
	if n := r.p.Runtime.BatchSize; n > 0 {
		return n
	}
	return 5000
}

func keyIndexes(columns, keys []string) []int {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		if i := slices.Index(columns, k); i >= 0 {
			idx = append(idx, i)
		}
	}
	return idx
}
