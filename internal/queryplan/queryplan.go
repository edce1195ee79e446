// Package queryplan implements the read-path contract of §4.6: given a
// search request, resolve the index_id to its current incarnation,
// consult the metastore for the set of published splits overlapping
// the request's time range and tag filter, and return split
// references for the search executor. Scoring, ranking, and the
// leaf/root fan-out that actually executes a query against those
// splits are out of scope per spec.md §1 — this package only narrows
// "which splits" a query must touch.
package queryplan

import (
	"context"
	"fmt"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/model"
	"github.com/duskline/duskline/internal/schema"
)

// SearchRequest is the read-path's single input: a logical index name,
// an opaque query AST the search executor will interpret, an optional
// time bound, an optional tag filter, and paging/sort hints carried
// through unchanged for the executor.
type SearchRequest struct {
	IndexID string
	QueryAST interface{}
	TimeRangeStart *int64
	TimeRangeEnd *int64
	TagsFilter schema.TagFilter
	Limit int
	SortBy string
}

// SplitRef is everything the search executor needs to open one split
// lazily: its id, the byte range of its footer within its bundle file,
// and its time range (so a coordinator can skip splits a later,
// cheaper check would otherwise rule out).
type SplitRef struct {
	SplitID string
	IndexURI string
	Footer model.FooterRange
	TimeRange model.TimeRange
}

// Plan resolves req against ms: it looks up req.IndexID's current
// index_uid, builds the §4.3 ListSplits predicate
// {index_uid, state=Published, time_range overlap, tags AST}, and
// returns the resulting split references. The contract: no Staged nor
// MarkedForDeletion split is ever returned, and the returned set comes
// from one ListSplits call so it is consistent with a single metastore
// snapshot.
func Plan(ctx context.Context, ms metastore.Metastore, req SearchRequest) ([]SplitRef, error) {
	idx, err := resolveIndex(ctx, ms, req.IndexID)
	if err != nil {
		return nil, err
	}

	query := metastore.ListSplitsQuery{
		IndexUIDs: []string{idx.IndexUID},
		States: []model.SplitState{model.SplitPublished},
		TimeRangeStart: req.TimeRangeStart,
		TimeRangeEnd: req.TimeRangeEnd,
		Tags: req.TagsFilter,
		Limit: req.Limit,
	}

	splits, err := ms.ListSplits(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("queryplan: listing splits for %s: %w", req.IndexID, err)
	}

	refs := make([]SplitRef, 0, len(splits))
	for _, s := range splits {
		refs = append(refs, SplitRef{
			SplitID: s.SplitID,
			IndexURI: idx.IndexURI,
			Footer: s.Footer,
			TimeRange: s.TimeRange,
		})
	}
	return refs, nil
}

// resolveIndex finds the index currently bearing index_id — its
// IndexUID already encodes the ULID incarnation suffix, so repeated
// create/delete cycles of the same index_id never resolve to a stale
// or deleted incarnation's splits.
func resolveIndex(ctx context.Context, ms metastore.Metastore, indexID string) (*model.Index, error) {
	indexes, err := ms.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("queryplan: resolving index %s: %w", indexID, err)
	}
	for _, idx := range indexes {
		if idx.IndexID == indexID {
			return idx, nil
		}
	}
	return nil, &metastore.ErrNotFound{Entity: fmt.Sprintf("index %s", indexID)}
}
