package gateway

import (
	"context"

	"go.chainindex.dev/core/coreindex"
)

// DebugInfo is the aggregated result of getDebugInfo, spec.md §4.7: counts,
// heights, timestamps, errors, and warnings from every store.
type DebugInfo struct {
	Core coreindex.DebugCounts

	LastFullyIndexedAt    int64
	LastFullyIndexedAtSet bool

	Errors   []string
	Warnings []string
}

// lastFullyIndexedAtWarningAge is spec.md §4.7's literal warning threshold
// ("last-fully-indexed bundle older than 24 hours").
const lastFullyIndexedAtWarningAge = 24 * 60 * 60

// GetDebugInfo dispatches to the debug pool's reader, combining the core
// store's invariant checks with the bundles store's staleness warning.
func (gw *Gateway) GetDebugInfo(ctx context.Context) (DebugInfo, error) {
	var v, err = gw.pools.Debug.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var info DebugInfo
		var err error
		if info.Core, err = gw.core.GetDebugCounts(ctx); err != nil {
			return nil, err
		}
		info.Errors = append(info.Errors, info.Core.Errors...)

		var lastFullyIndexedAt, ok, lerr = gw.bundles.GetLastFullyIndexedAt(ctx)
		if lerr != nil {
			return nil, lerr
		}
		info.LastFullyIndexedAt, info.LastFullyIndexedAtSet = lastFullyIndexedAt, ok
		if ok && gw.now()-lastFullyIndexedAt > lastFullyIndexedAtWarningAge {
			info.Warnings = append(info.Warnings, "last-fully-indexed bundle older than 24 hours")
		}
		return info, nil
	}).Wait(ctx)
	if err != nil {
		return DebugInfo{}, err
	}
	return v.(DebugInfo), nil
}
