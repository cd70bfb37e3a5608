package gqlquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go.chainindex.dev/core/model"
)

// TestGetSearchByTagsExactModeDelegatesToGetTransactions covers MatchExact,
// which search.go's GetSearchByTags reduces to the ordinary tag-filtered
// GetTransactions path rather than its GLOB/EXISTS/IN search path.
func TestGetSearchByTagsExactModeDelegatesToGetTransactions(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-tagged"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-other"), 2)
	seedStableTag(t, store, []byte("tx-tagged"), 10, 0, []byte("App-Name"), []byte("test-app"))

	var page, err = p.GetSearchByTags(ctx, SearchQuery{
		TagName: []byte("App-Name"),
		Values:  [][]byte{[]byte("test-app")},
		Mode:    model.MatchExact,
	})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	require.Equal(t, []byte("tx-tagged"), page.Edges[0].Node.ID)
}

// TestGetSearchByTagsRejectsEmptyValues covers the no-values edge case for
// every non-exact match mode: rather than panicking on an out-of-range
// index into an empty Values slice, the request must fail cleanly.
func TestGetSearchByTagsRejectsEmptyValues(t *testing.T) {
	var p, _ = openTestPlanner(t)
	var ctx = context.Background()

	var _, err = p.GetSearchByTags(ctx, SearchQuery{TagName: []byte("App-Name"), Mode: model.MatchWildcard})
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = p.GetSearchByTags(ctx, SearchQuery{TagName: []byte("App-Name"), Mode: model.MatchFuzzyAnd})
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = p.GetSearchByTags(ctx, SearchQuery{TagName: []byte("App-Name"), Mode: model.MatchFuzzyOr})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

// TestGetSearchByTagsWildcardModeMatchesSubstring covers MatchWildcard, which
// compares the tag's raw value with SQL GLOB rather than hash equality.
func TestGetSearchByTagsWildcardModeMatchesSubstring(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-match"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-nomatch"), 2)
	seedStableTag(t, store, []byte("tx-match"), 10, 0, []byte("Content-Type"), []byte("application/json"))
	seedStableTag(t, store, []byte("tx-nomatch"), 11, 0, []byte("Content-Type"), []byte("text/plain"))

	var page, err = p.GetSearchByTags(ctx, SearchQuery{
		TagName: []byte("Content-Type"),
		Values:  [][]byte{[]byte("json")},
		Mode:    model.MatchWildcard,
	})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	require.Equal(t, []byte("tx-match"), page.Edges[0].Node.ID)
}

// TestGetSearchByTagsWildcardPagesByCursor covers the cursor-continuation
// path a non-exact search mode must honor rather than silently restarting
// from page 1 on every request.
func TestGetSearchByTagsWildcardPagesByCursor(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-10"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-11"), 2)
	seedStableTransaction(t, store, 12, 0, []byte("tx-12"), 3)
	seedStableTag(t, store, []byte("tx-10"), 10, 0, []byte("Content-Type"), []byte("application/json"))
	seedStableTag(t, store, []byte("tx-11"), 11, 0, []byte("Content-Type"), []byte("application/json"))
	seedStableTag(t, store, []byte("tx-12"), 12, 0, []byte("Content-Type"), []byte("application/json"))

	var page1, err = p.GetSearchByTags(ctx, SearchQuery{
		PageSize: 2, TagName: []byte("Content-Type"), Values: [][]byte{[]byte("json")}, Mode: model.MatchWildcard,
	})
	require.NoError(t, err)
	require.True(t, page1.HasNextPage)
	require.Len(t, page1.Edges, 2)
	require.NotEmpty(t, page1.Edges[1].Cursor)

	var page2, err2 = p.GetSearchByTags(ctx, SearchQuery{
		PageSize: 2, TagName: []byte("Content-Type"), Values: [][]byte{[]byte("json")}, Mode: model.MatchWildcard,
		Cursor: page1.Edges[1].Cursor,
	})
	require.NoError(t, err2)
	require.False(t, page2.HasNextPage)
	require.Len(t, page2.Edges, 1)

	var seenFirstPage = map[string]bool{}
	for _, e := range page1.Edges {
		seenFirstPage[string(e.Node.ID)] = true
	}
	require.False(t, seenFirstPage[string(page2.Edges[0].Node.ID)], "second page must not repeat a row from the first")
}

// TestGetSearchByTagsFuzzyAndRequiresAllValuesAcrossDistinctOccurrences
// covers MatchFuzzyAnd: a transaction carrying the tag name once per
// candidate value (a multi-valued tag) matches only once every candidate
// value is present on some occurrence, not all on the one occurrence a
// naive single-row join would bind.
func TestGetSearchByTagsFuzzyAndRequiresAllValuesAcrossDistinctOccurrences(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-both"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-one"), 2)
	seedStableTag(t, store, []byte("tx-both"), 10, 0, []byte("Keyword"), []byte("alpha"))
	seedStableTag(t, store, []byte("tx-both"), 10, 0, []byte("Keyword"), []byte("beta"))
	seedStableTag(t, store, []byte("tx-one"), 11, 0, []byte("Keyword"), []byte("alpha"))

	var page, err = p.GetSearchByTags(ctx, SearchQuery{
		TagName: []byte("Keyword"),
		Values:  [][]byte{[]byte("alpha"), []byte("beta")},
		Mode:    model.MatchFuzzyAnd,
	})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	require.Equal(t, []byte("tx-both"), page.Edges[0].Node.ID)
}

// TestGetSearchByTagsFuzzyOrMatchesAnyCandidateValue covers MatchFuzzyOr:
// a single occurrence matching any one of the candidate values is enough.
func TestGetSearchByTagsFuzzyOrMatchesAnyCandidateValue(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-alpha"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-gamma"), 2)
	seedStableTag(t, store, []byte("tx-alpha"), 10, 0, []byte("Keyword"), []byte("alpha"))
	seedStableTag(t, store, []byte("tx-gamma"), 11, 0, []byte("Keyword"), []byte("gamma"))

	var page, err = p.GetSearchByTags(ctx, SearchQuery{
		TagName: []byte("Keyword"),
		Values:  [][]byte{[]byte("alpha"), []byte("beta")},
		Mode:    model.MatchFuzzyOr,
	})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	require.Equal(t, []byte("tx-alpha"), page.Edges[0].Node.ID)
}
