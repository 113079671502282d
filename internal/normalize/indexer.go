package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"normalize/internal/records"
)

// Stats counts how an indexer resolved keys.
type Stats struct {
	Existing int64 // keys seeded from existing rows
	Created  int64 // keys first seen in the main stream
	Reused   int64 // records resolved to an already known key
}

// Indexer assigns surrogate ids for one group.
type Indexer struct {
	group Group
	calc  KeyCalc
	store Store
	seen  *KeySet
	next  int64
	log   *zap.Logger

	bound   bool
	table   string
	rewrite records.Rewrite
	gate    func() bool

	stats Stats
}

// NewIndexer builds an indexer over store and seeds it with g.ExistingRows.
// The indexer takes ownership of store.
func NewIndexer(g Group, store Store, opts ...Option) (*Indexer, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	ix := &Indexer{
		group: g,
		calc:  NewKeyCalc(g.Fields),
		store: store,
		seen:  NewKeySet(len(g.ExistingRows)),
		table: g.Table,
		log:   o.log,
	}
	if err := ix.seed(g.ExistingRows); err != nil {
		return nil, err
	}
	ix.log.Debug("normalize: indexer ready",
		zap.Stringer("group", g),
		zap.Int64("existing", ix.stats.Existing),
		zap.Int64("next_id", ix.next),
	)
	return ix, nil
}

func (ix *Indexer) seed(rows []records.Record) error {
	for i, row := range rows {
		id, err := surrogateID(row[ix.group.IndexField])
		if err != nil {
			return fmt.Errorf("normalize: group %q: existing row %d: %w", ix.group.RefField, i, err)
		}
		key := ix.calc.Key(row)
		if ix.seen.Contains(key) {
			_, dup, err := ix.store.Get(key)
			if err != nil {
				return fmt.Errorf("normalize: group %q: %w", ix.group.RefField, err)
			}
			if dup {
				return fmt.Errorf("normalize: group %q: existing row %d: %w", ix.group.RefField, i, ErrDuplicateExistingKey)
			}
		}
		if err := ix.store.Set(key, ix.project(row, id)); err != nil {
			return fmt.Errorf("normalize: group %q: seed: %w", ix.group.RefField, err)
		}
		ix.seen.Add(key)
		ix.next = max(ix.next, id+1)
		ix.stats.Existing++
	}
	return nil
}

// project builds a dimension row holding only the group's fields and id.
func (ix *Indexer) project(r records.Record, id int64) records.Record {
	row := make(records.Record, len(ix.group.Fields)+1)
	for _, f := range ix.group.Fields {
		row[f] = r[f]
	}
	row[ix.group.IndexField] = id
	return row
}

// Group returns the group the indexer was built for, with Table resolved
// once the indexer is bound to a resource.
func (ix *Indexer) Group() Group {
	g := ix.group
	g.Table = ix.table
	return g
}

// Stats returns the resolution counters.
func (ix *Indexer) Stats() Stats { return ix.stats }

// NextID returns the id the next new key will receive.
func (ix *Indexer) NextID() int64 { return ix.next }

// Resolve returns the surrogate id of r's key, assigning the next id when the
// key has not been seen before.
func (ix *Indexer) Resolve(r records.Record) (int64, error) {
	key := ix.calc.Key(r)
	if ix.seen.Contains(key) {
		row, ok, err := ix.store.Get(key)
		if err != nil {
			return 0, fmt.Errorf("normalize: group %q: lookup: %w", ix.group.RefField, err)
		}
		if ok {
			id, err := surrogateID(row[ix.group.IndexField])
			if err != nil {
				return 0, fmt.Errorf("normalize: group %q: stored row: %w", ix.group.RefField, err)
			}
			ix.stats.Reused++
			return id, nil
		}
	}

	id := ix.next
	if err := ix.store.Set(key, ix.project(r, id)); err != nil {
		return 0, fmt.Errorf("normalize: group %q: store: %w", ix.group.RefField, err)
	}
	ix.seen.Add(key)
	ix.next++
	ix.stats.Created++
	return id, nil
}

// Apply rewrites r in place: the group's fields are removed and the
// reference field is set to the resolved surrogate id.
func (ix *Indexer) Apply(r records.Record) error {
	id, err := ix.Resolve(r)
	if err != nil {
		return err
	}
	for _, f := range ix.group.Fields {
		delete(r, f)
	}
	r[ix.group.RefField] = id
	return nil
}

// Bind rewrites the descriptor of the resource the group is extracted from
// and remembers what the dimension table needs. The returned descriptor is a
// new value; res is left untouched. Bind may be called once.
func (ix *Indexer) Bind(res records.Resource) (records.Resource, error) {
	if ix.bound {
		return records.Resource{}, fmt.Errorf("normalize: group %q is already bound to %q", ix.group.RefField, ix.table)
	}
	for _, f := range ix.group.Fields {
		if !res.Schema.HasField(f) {
			return records.Resource{}, configErrorf("bind", ErrInvalidGroup,
				"group %q: field %q is not in the schema of %q", ix.group.RefField, f, res.Name)
		}
	}
	ix.rewrite = records.RewriteSchema(res.Schema, ix.group.Fields, ix.group.RefField)
	if ix.table == "" {
		ix.table = DefaultTable(res.Name, ix.group.RefField)
	}
	ix.bound = true

	out := res
	out.Schema = ix.rewrite.Main
	return out, nil
}

// Emit returns the dimension resource: its descriptor and a stream over every
// stored row (seeded and newly created) in store order.
func (ix *Indexer) Emit() Resource {
	desc := records.Resource{
		Name:   ix.table,
		Path:   ix.table + ".csv",
		Schema: records.DimensionSchema(ix.group.IndexField, ix.rewrite),
	}
	return Resource{Descriptor: desc, Rows: ix.rows()}
}

var errStop = errors.New("stop")

func (ix *Indexer) rows() iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		if ix.gate != nil && !ix.gate() {
			yield(nil, fmt.Errorf("normalize: dimension %q: %w", ix.table, ErrMainNotDrained))
			return
		}
		err := ix.store.Items(func(_ Key, row records.Record) error {
			if !yield(row.Clone(), nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(nil, fmt.Errorf("normalize: dimension %q: %w", ix.table, err))
		}
	}
}

// Close releases the indexer's store.
func (ix *Indexer) Close() error {
	return ix.store.Close()
}

// surrogateID converts a stored or persisted id into an int64. Values read
// back from databases and files arrive in several integer representations.
func surrogateID(v any) (int64, error) {
	var id int64
	switch t := v.(type) {
	case int:
		id = int64(t)
	case int8:
		id = int64(t)
	case int16:
		id = int64(t)
	case int32:
		id = int64(t)
	case int64:
		id = t
	case uint8:
		id = int64(t)
	case uint16:
		id = int64(t)
	case uint32:
		id = int64(t)
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidSurrogateID, t)
		}
		id = int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidSurrogateID, t)
		}
		id = int64(t)
	case float32:
		return surrogateID(float64(t))
	case float64:
		if t != math.Trunc(t) || t < 0 || t >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSurrogateID, t)
		}
		id = int64(t)
	case json.Number:
		return surrogateID(t.String())
	case []byte:
		return surrogateID(string(t))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSurrogateID, t)
		}
		id = n
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidSurrogateID)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidSurrogateID, v)
	}
	if id < 0 {
		return 0, fmt.Errorf("%w: negative id %d", ErrInvalidSurrogateID, id)
	}
	return id, nil
}
