// Package normalize factors groups of recurring fields out of a tabular
// record stream into dimension tables keyed by surrogate integers.
//
// Each Group names the fields to extract, the reference field that replaces
// them in the main (fact) stream and the index field of the dimension table.
// An Indexer owns one group: it computes deduplication keys, assigns
// surrogate ids in first-seen order and remembers them in a Store. Seeding an
// Indexer with the dimension rows persisted by a previous run keeps the ids
// stable across runs.
//
// Normalize composes one Indexer per group over a single forward-only pass of
// the main stream and appends one dimension resource per group:
//
//	res, err := normalize.Normalize(resources, groups,
//		normalize.WithMatcher(normalize.MatchNames("sales")))
//	if err != nil { ... }
//	defer res.Close()
//	for _, r := range res.Resources {
//		for rec, err := range r.Rows { ... }
//	}
//
// Dimension streams may only be consumed after the main stream is drained.
package normalize
