package normalize

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"go.uber.org/zap"

	"normalize/internal/records"
)

// Resource is a descriptor paired with its record stream.
type Resource struct {
	Descriptor records.Resource
	Rows       iter.Seq2[records.Record, error]
}

// Result is the output of Normalize.
type Result struct {
	// Resources holds the input resources with the main resource replaced
	// by the fact stream, followed by one dimension resource per group.
	Resources []Resource
	// Main is the position of the fact resource in Resources.
	Main int
	// Indexers holds one indexer per group, in group order.
	Indexers []*Indexer

	pass *pass
}

// Fact returns the fact resource.
func (r *Result) Fact() Resource { return r.Resources[r.Main] }

// Dimensions returns the dimension resources in group order.
func (r *Result) Dimensions() []Resource {
	return r.Resources[len(r.Resources)-len(r.Indexers):]
}

// Drained reports whether the main stream has been fully consumed.
func (r *Result) Drained() bool { return r.pass.drained }

// Processed returns the number of main records forwarded so far.
func (r *Result) Processed() int64 { return r.pass.processed }

// Close releases the stores of every group.
func (r *Result) Close() error {
	var errs []error
	for _, ix := range r.Indexers {
		if err := ix.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ix.table, err))
		}
	}
	return errors.Join(errs...)
}

type pass struct {
	started   bool
	drained   bool
	processed int64
}

// Normalize factors every group out of the main resource. The main resource
// is the single resource selected by the matcher; zero or several matches are
// a configuration error reported before any record is read. Groups are
// applied in order to each main record, and their dimension resources are
// appended in the same order.
func Normalize(resources []Resource, groups []Group, opts ...Option) (*Result, error) {
	o := newOptions(opts)

	mainIdx, err := matchOne(resources, o.matcher)
	if err != nil {
		return nil, err
	}
	main := resources[mainIdx]
	if len(main.Descriptor.Schema.Fields) == 0 {
		return nil, configErrorf("normalize", ErrInvalidGroup, "resource %q declares no fields", main.Descriptor.Name)
	}
	if err := ValidateGroups(main.Descriptor.Schema, groups); err != nil {
		return nil, err
	}

	res := &Result{Main: mainIdx, pass: &pass{}}
	desc := main.Descriptor
	desc.Schema = desc.Schema.Clone()
	for _, g := range groups {
		store, err := o.stores(g)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("normalize: store for %q: %w", g.RefField, err)
		}
		ix, err := NewIndexer(g, store, opts...)
		if err != nil {
			_ = store.Close()
			_ = res.Close()
			return nil, err
		}
		res.Indexers = append(res.Indexers, ix)
		if desc, err = ix.Bind(desc); err != nil {
			_ = res.Close()
			return nil, err
		}
		ix.gate = res.Drained
	}

	res.Resources = slices.Clone(resources)
	res.Resources[mainIdx] = Resource{
		Descriptor: desc,
		Rows:       factRows(main.Rows, res.Indexers, res.pass, o.log),
	}
	for _, ix := range res.Indexers {
		res.Resources = append(res.Resources, ix.Emit())
	}
	return res, nil
}

func matchOne(resources []Resource, m Matcher) (int, error) {
	if m == nil {
		m = MatchAll()
	}
	found := -1
	var names []string
	for i, r := range resources {
		if !m(i, len(resources), r.Descriptor.Name) {
			continue
		}
		names = append(names, r.Descriptor.Name)
		found = i
	}
	switch len(names) {
	case 0:
		return -1, configErrorf("match resource", ErrNoResource, "%d candidates", len(resources))
	case 1:
		return found, nil
	default:
		return -1, configErrorf("match resource", ErrAmbiguousResource, "%v", names)
	}
}

// factRows streams the main resource once, running every group over each
// record. Upstream errors are forwarded; store errors end the stream.
func factRows(src iter.Seq2[records.Record, error], indexers []*Indexer, st *pass, log *zap.Logger) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		if st.started {
			yield(nil, ErrMainConsumed)
			return
		}
		st.started = true

		for rec, err := range src {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			out := rec.Clone()
			for _, ix := range indexers {
				if err := ix.Apply(out); err != nil {
					yield(nil, err)
					return
				}
			}
			st.processed++
			if !yield(out, nil) {
				return
			}
		}
		st.drained = true

		for _, ix := range indexers {
			s := ix.Stats()
			log.Info("normalize: group done",
				zap.String("table", ix.table),
				zap.String("ref", ix.group.RefField),
				zap.Int64("existing", s.Existing),
				zap.Int64("created", s.Created),
				zap.Int64("reused", s.Reused),
			)
		}
		log.Info("normalize: main stream drained", zap.Int64("records", st.processed))
	}
}
