// Package gateway wires the four persistent stores, the six worker pools,
// the query planner, and the two data-index circuit breakers into the
// capability-set interfaces spec.md §6 exposes to the rest of the gateway
// process: ChainIndex, ChainOffsetIndex, BundleIndex, ContiguousDataIndex,
// NestedDataIndexWriter, BlockListValidator, and GqlQueryable.
//
// Every capability method submits a Job to the appropriate named pool
// (spec.md §4.3) and waits on its Future, rather than calling the
// underlying *index.Index directly -- this is what gives the indexing
// core its serialize-writes/parallelize-reads scheduling contract.
// Grounded on cmd/gazette/main.go's top-level wiring shape (construct
// stores/services, then hand them to a server), adapted here to an
// in-process worker-pool dispatcher instead of a gRPC server.
package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.chainindex.dev/core/breaker"
	"go.chainindex.dev/core/bundleindex"
	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/config"
	"go.chainindex.dev/core/coreindex"
	"go.chainindex.dev/core/dataindex"
	"go.chainindex.dev/core/gqlquery"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/modindex"
	"go.chainindex.dev/core/schema"
	"go.chainindex.dev/core/txdata"
	"go.chainindex.dev/core/workerpool"
)

// Gateway is the constructed indexing core: four stores, six pools, the
// query planner, and the two breakers guarding the data store's hot reads.
type Gateway struct {
	cfg config.Config

	core       *coreindex.Index
	bundles    *bundleindex.Index
	data       *dataindex.Index
	moderation *modindex.Index
	planner    *gqlquery.Planner

	pools *workerpool.Pools

	plannerStore *chainstore.Store

	dataAttrsBreaker  *breaker.Breaker
	dataParentBreaker *breaker.Breaker

	now func() int64
}

// Open opens all four stores at the paths named in cfg, attaches core and
// bundles to each other (spec.md §4.1), starts the six pools, and builds
// the query planner and breakers. Close releases everything.
func Open(ctx context.Context, cfg config.Config) (*Gateway, error) {
	// core's and bundles' own schemas must exist before either attaches
	// and prepares statements reaching across into the other (below):
	// on a genuinely fresh deployment neither file has any tables yet,
	// and ATTACH does not run the other store's bootstrap DDL for you.
	if err := bootstrapSchema("bundles-bootstrap", cfg.BundlesDBPath, schema.BundlesBootstrap); err != nil {
		return nil, errors.WithMessage(err, "bootstrapping bundles schema")
	}
	if err := bootstrapSchema("core-bootstrap", cfg.CoreDBPath, schema.CoreBootstrap); err != nil {
		return nil, errors.WithMessage(err, "bootstrapping core schema")
	}

	var core, err = coreindex.Open(ctx, cfg.CoreDBPath, cfg.BundlesDBPath, cfg.MaxForkDepth)
	if err != nil {
		return nil, errors.WithMessage(err, "opening core store")
	}
	var bundles *bundleindex.Index
	if bundles, err = bundleindex.Open(ctx, cfg.BundlesDBPath, cfg.CoreDBPath); err != nil {
		core.Close()
		return nil, errors.WithMessage(err, "opening bundles store")
	}
	var data *dataindex.Index
	if data, err = dataindex.Open(cfg.DataDBPath); err != nil {
		core.Close()
		bundles.Close()
		return nil, errors.WithMessage(err, "opening data store")
	}
	var moderation *modindex.Index
	if moderation, err = modindex.Open(cfg.ModerationDBPath); err != nil {
		core.Close()
		bundles.Close()
		data.Close()
		return nil, errors.WithMessage(err, "opening moderation store")
	}

	var coreStore, cerr = chainstore.Open("core-planner", cfg.CoreDBPath, "", nil)
	if cerr != nil {
		core.Close()
		bundles.Close()
		data.Close()
		moderation.Close()
		return nil, errors.WithMessage(cerr, "opening planner connection")
	}
	if err := coreStore.Attach(ctx, "bundles", cfg.BundlesDBPath); err != nil {
		core.Close()
		bundles.Close()
		data.Close()
		moderation.Close()
		coreStore.Close()
		return nil, errors.WithMessage(err, "attaching bundles to planner connection")
	}
	if err := coreStore.Prepare("selectMaxStableBlockHeight", `SELECT MAX(height) FROM stable_blocks`); err != nil {
		core.Close()
		bundles.Close()
		data.Close()
		moderation.Close()
		coreStore.Close()
		return nil, err
	}

	var gw = &Gateway{
		cfg:        cfg,
		core:       core,
		bundles:    bundles,
		data:       data,
		moderation:   moderation,
		planner:      gqlquery.New(coreStore),
		pools:        workerpool.NewPools(cfg.Pools),
		plannerStore: coreStore,
		dataAttrsBreaker: breaker.New("data-attributes", breaker.Config{
			Timeout: cfg.Breaker.Timeout, Window: cfg.Breaker.Window,
			ErrorRatio: cfg.Breaker.ErrorRatio, MinRequests: 4, ResetTimeout: cfg.Breaker.ResetTimeout,
		}),
		dataParentBreaker: breaker.New("data-parent", breaker.Config{
			Timeout: cfg.Breaker.Timeout, Window: cfg.Breaker.Window,
			ErrorRatio: cfg.Breaker.ErrorRatio, MinRequests: 4, ResetTimeout: cfg.Breaker.ResetTimeout,
		}),
		now: func() int64 { return time.Now().Unix() },
	}
	return gw, nil
}

// Close stops every pool (draining queued work) and closes every store.
func (gw *Gateway) Close() error {
	gw.pools.Close()
	var errs []error
	for _, c := range []func() error{gw.core.Close, gw.bundles.Close, gw.data.Close, gw.moderation.Close, gw.plannerStore.Close} {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// bootstrapSchema runs bootstrapSQL's CREATE TABLE IF NOT EXISTS statements
// against path on a throwaway connection, with no prepared statements and
// no cross-store attach. Idempotent: a steady-state deployment where path
// already carries its schema is a no-op.
func bootstrapSchema(name, path, bootstrapSQL string) error {
	var store, err = chainstore.Open(name, path, bootstrapSQL, nil)
	if err != nil {
		return err
	}
	return store.Close()
}

// --- ChainIndex / ChainOffsetIndex ---

// SaveBlockAndTxs dispatches to the core pool's single writer, per spec.md
// §4.3's write-serialization contract.
func (gw *Gateway) SaveBlockAndTxs(ctx context.Context, block model.Block, txs []model.Transaction, missingTxIds [][]byte) error {
	var _, err = gw.pools.Core.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.core.SaveBlockAndTxs(ctx, block, txs, missingTxIds, gw.bundles)
	}).Wait(ctx)
	return err
}

// SaveTx dispatches to the core pool's writer.
func (gw *Gateway) SaveTx(ctx context.Context, tx model.Transaction) error {
	var _, err = gw.pools.Core.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.core.SaveTx(ctx, tx)
	}).Wait(ctx)
	return err
}

// ResetToHeight dispatches to the core pool's writer, rolling back both
// core and bundles new-state, per spec.md §4.2.
func (gw *Gateway) ResetToHeight(ctx context.Context, h int64) error {
	var _, err = gw.pools.Core.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.core.ResetToHeight(ctx, h, gw.bundles)
	}).Wait(ctx)
	return err
}

// GetMaxHeight dispatches to the core pool's reader.
func (gw *Gateway) GetMaxHeight(ctx context.Context) (int64, bool, error) {
	var v, err = gw.pools.Core.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var h, ok, err = gw.core.GetMaxHeight(ctx)
		return maxHeightResult{h, ok}, err
	}).Wait(ctx)
	if err != nil {
		return 0, false, err
	}
	var r = v.(maxHeightResult)
	return r.height, r.ok, nil
}

type maxHeightResult struct {
	height int64
	ok     bool
}

// GetBlockHashByHeight dispatches to the core pool's reader.
func (gw *Gateway) GetBlockHashByHeight(ctx context.Context, h int64) ([]byte, bool, error) {
	var v, err = gw.pools.Core.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var hash, ok, err = gw.core.GetBlockHashByHeight(ctx, h)
		return blockHashResult{hash, ok}, err
	}).Wait(ctx)
	if err != nil {
		return nil, false, err
	}
	var r = v.(blockHashResult)
	return r.hash, r.ok, nil
}

type blockHashResult struct {
	hash []byte
	ok   bool
}

// GetMissingTxIds dispatches to the core pool's reader.
func (gw *Gateway) GetMissingTxIds(ctx context.Context) ([][]byte, error) {
	var v, err = gw.pools.Core.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.core.GetMissingTxIds(ctx)
	}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

// GetTxIdsMissingOffsets dispatches to the core pool's reader.
func (gw *Gateway) GetTxIdsMissingOffsets(ctx context.Context) ([][]byte, error) {
	var v, err = gw.pools.Core.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.core.GetTxIdsMissingOffsets(ctx)
	}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

// SaveTxOffset dispatches to the core pool's writer.
func (gw *Gateway) SaveTxOffset(ctx context.Context, id []byte, offset, size int64) error {
	var _, err = gw.pools.Core.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.core.SaveTxOffset(ctx, id, offset, size)
	}).Wait(ctx)
	return err
}

// GetTransactionDataRoot dispatches to the core pool's reader.
func (gw *Gateway) GetTransactionDataRoot(ctx context.Context, id []byte) ([]byte, bool, error) {
	var v, err = gw.pools.Core.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var root, ok, err = gw.core.GetTransactionDataRoot(ctx, id)
		return dataRootResult{root, ok}, err
	}).Wait(ctx)
	if err != nil {
		return nil, false, err
	}
	var r = v.(dataRootResult)
	return r.root, r.ok, nil
}

type dataRootResult struct {
	root []byte
	ok   bool
}

// GetTxOffset dispatches to the core pool's reader.
func (gw *Gateway) GetTxOffset(ctx context.Context, id []byte) (int64, int64, bool, error) {
	var v, err = gw.pools.Core.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var offset, size, ok, err = gw.core.GetTxOffset(ctx, id)
		return txOffsetResult{offset, size, ok}, err
	}).Wait(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	var r = v.(txOffsetResult)
	return r.offset, r.size, r.ok, nil
}

type txOffsetResult struct {
	offset, size int64
	ok           bool
}

// --- BundleIndex ---

// SaveDataItem dispatches to the bundles pool's writer.
func (gw *Gateway) SaveDataItem(ctx context.Context, item model.DataItem) error {
	var _, err = gw.pools.Bundles.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.bundles.SaveDataItem(ctx, item)
	}).Wait(ctx)
	return err
}

// SaveBundle dispatches to the bundles pool's writer.
func (gw *Gateway) SaveBundle(ctx context.Context, rec model.BundleRecord) error {
	var _, err = gw.pools.Bundles.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.bundles.SaveBundle(ctx, rec)
	}).Wait(ctx)
	return err
}

// GetFailedBundleIds dispatches to the bundles pool's reader.
func (gw *Gateway) GetFailedBundleIds(ctx context.Context) ([][]byte, error) {
	var v, err = gw.pools.Bundles.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.bundles.GetFailedBundleIds(ctx)
	}).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

// BackfillBundles dispatches to the bundles pool's writer.
func (gw *Gateway) BackfillBundles(ctx context.Context, ids [][]byte) error {
	var _, err = gw.pools.Bundles.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.bundles.BackfillBundles(ctx, ids)
	}).Wait(ctx)
	return err
}

// UpdateBundlesFullyIndexedAt dispatches to the bundles pool's writer. Per
// SPEC_FULL.md's resolution of spec.md §9's Open Question, this is routed
// to the write queue rather than preserving the source's inadvertent
// read-queue routing.
func (gw *Gateway) UpdateBundlesFullyIndexedAt(ctx context.Context, id []byte, at int64) error {
	var _, err = gw.pools.Bundles.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.bundles.UpdateBundlesFullyIndexedAt(ctx, id, at)
	}).Wait(ctx)
	return err
}

// UpdateBundlesForFilterChange dispatches to the bundles pool's writer.
func (gw *Gateway) UpdateBundlesForFilterChange(ctx context.Context, id []byte, unbundleFilter, indexFilter string) error {
	var _, err = gw.pools.Bundles.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.bundles.UpdateBundlesForFilterChange(ctx, id, unbundleFilter, indexFilter)
	}).Wait(ctx)
	return err
}

// --- ContiguousDataIndex / NestedDataIndexWriter ---

// GetDataAttributes dispatches to the data pool's reader, wrapped by the
// data-attributes circuit breaker of spec.md §4.8. A tripped breaker
// returns ok=false, err=nil -- "unknown", not "absent" -- which callers
// must not treat as a not-found result.
func (gw *Gateway) GetDataAttributes(ctx context.Context, id []byte) (model.DataContentAttributes, bool, error) {
	var v, err = gw.pools.Data.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var attrs, found, breakerOK, err = breakerCall(ctx, gw.dataAttrsBreaker, func(ctx context.Context) (model.DataContentAttributes, bool, error) {
			return gw.data.GetDataAttributes(ctx, id)
		})
		return dataAttrsResult{attrs, found, breakerOK}, err
	}).Wait(ctx)
	if err != nil {
		return model.DataContentAttributes{}, false, err
	}
	var r = v.(dataAttrsResult)
	if !r.breakerOK {
		return model.DataContentAttributes{}, false, nil // unknown, per spec.md §4.8.
	}
	return r.attrs, r.found, nil
}

type dataAttrsResult struct {
	attrs     model.DataContentAttributes
	found     bool
	breakerOK bool
}

// GetDataParent dispatches to the data pool's reader, wrapped by the
// data-parent circuit breaker.
func (gw *Gateway) GetDataParent(ctx context.Context, idOrHash []byte) (model.DataParent, bool, error) {
	var v, err = gw.pools.Data.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var parent, found, breakerOK, err = breakerCall(ctx, gw.dataParentBreaker, func(ctx context.Context) (model.DataParent, bool, error) {
			return gw.data.GetDataParent(ctx, idOrHash)
		})
		return dataParentResult{parent, found, breakerOK}, err
	}).Wait(ctx)
	if err != nil {
		return model.DataParent{}, false, err
	}
	var r = v.(dataParentResult)
	if !r.breakerOK {
		return model.DataParent{}, false, nil
	}
	return r.parent, r.found, nil
}

type dataParentResult struct {
	parent    model.DataParent
	found     bool
	breakerOK bool
}

// breakerCall adapts breaker.Call's single-value generic signature to the
// (value, found, error) shape ContiguousDataIndex's reads use.
func breakerCall[T any](ctx context.Context, b *breaker.Breaker, fn func(context.Context) (T, bool, error)) (T, bool, bool, error) {
	type pair struct {
		v     T
		found bool
	}
	var p, ok, err = breaker.Call(ctx, b, func(ctx context.Context) (pair, error) {
		var v, found, err = fn(ctx)
		return pair{v, found}, err
	})
	return p.v, p.found, ok, err
}

// SaveDataContentAttributes dispatches to the data pool's writer.
func (gw *Gateway) SaveDataContentAttributes(ctx context.Context, attrs model.DataContentAttributes) error {
	var _, err = gw.pools.Data.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.data.SaveDataContentAttributes(ctx, attrs)
	}).Wait(ctx)
	return err
}

// SaveNestedDataId dispatches to the data pool's writer.
func (gw *Gateway) SaveNestedDataId(ctx context.Context, id, parentID []byte, dataOffset, dataSize int64) error {
	var _, err = gw.pools.Data.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.data.SaveNestedDataId(ctx, id, parentID, dataOffset, dataSize)
	}).Wait(ctx)
	return err
}

// SaveNestedDataHash dispatches to the data pool's writer.
func (gw *Gateway) SaveNestedDataHash(ctx context.Context, hash, parentID []byte, dataOffset int64) error {
	var _, err = gw.pools.Data.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.data.SaveNestedDataHash(ctx, hash, parentID, dataOffset)
	}).Wait(ctx)
	return err
}

// --- BlockListValidator ---

// IsIdBlocked dispatches to the moderation pool's reader.
func (gw *Gateway) IsIdBlocked(ctx context.Context, id []byte) (bool, error) {
	var v, err = gw.pools.Moderation.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.moderation.IsIdBlocked(ctx, id)
	}).Wait(ctx)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// IsHashBlocked dispatches to the moderation pool's reader.
func (gw *Gateway) IsHashBlocked(ctx context.Context, hash []byte) (bool, error) {
	var v, err = gw.pools.Moderation.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.moderation.IsHashBlocked(ctx, hash)
	}).Wait(ctx)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// BlockData dispatches to the moderation pool's writer.
func (gw *Gateway) BlockData(ctx context.Context, req modindex.BlockRequest) error {
	var _, err = gw.pools.Moderation.SubmitWrite(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, gw.moderation.BlockData(ctx, req)
	}).Wait(ctx)
	return err
}

// --- GqlQueryable ---

// GetGqlTransactions dispatches to the gql pool's readers, per spec.md
// §4.4.
func (gw *Gateway) GetGqlTransactions(ctx context.Context, q gqlquery.TransactionsQuery) (gqlquery.Page, error) {
	var v, err = gw.pools.GQL.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.planner.GetTransactions(ctx, q)
	}).Wait(ctx)
	if err != nil {
		return gqlquery.Page{}, err
	}
	return v.(gqlquery.Page), nil
}

// GetGqlTransaction dispatches to the gql pool's readers.
func (gw *Gateway) GetGqlTransaction(ctx context.Context, id []byte) (gqlquery.Node, bool, error) {
	var v, err = gw.pools.GQL.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var n, ok, err = gw.planner.GetTransaction(ctx, id)
		return gqlTxResult{n, ok}, err
	}).Wait(ctx)
	if err != nil {
		return gqlquery.Node{}, false, err
	}
	var r = v.(gqlTxResult)
	return r.node, r.ok, nil
}

type gqlTxResult struct {
	node gqlquery.Node
	ok   bool
}

// GetGqlBlocks dispatches to the gql pool's readers.
func (gw *Gateway) GetGqlBlocks(ctx context.Context, q gqlquery.BlocksQuery) (gqlquery.BlockPage, error) {
	var v, err = gw.pools.GQL.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.planner.GetBlocks(ctx, q)
	}).Wait(ctx)
	if err != nil {
		return gqlquery.BlockPage{}, err
	}
	return v.(gqlquery.BlockPage), nil
}

// GetGqlBlock dispatches to the gql pool's readers.
func (gw *Gateway) GetGqlBlock(ctx context.Context, indepHash []byte) (gqlquery.BlockNode, bool, error) {
	var v, err = gw.pools.GQL.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		var n, ok, err = gw.planner.GetBlock(ctx, indepHash)
		return gqlBlockResult{n, ok}, err
	}).Wait(ctx)
	if err != nil {
		return gqlquery.BlockNode{}, false, err
	}
	var r = v.(gqlBlockResult)
	return r.node, r.ok, nil
}

type gqlBlockResult struct {
	node gqlquery.BlockNode
	ok   bool
}

// GetGqlSearchByTags dispatches to the gql pool's readers, spec.md §9's
// resolved Open Question.
func (gw *Gateway) GetGqlSearchByTags(ctx context.Context, q gqlquery.SearchQuery) (gqlquery.Page, error) {
	var v, err = gw.pools.GQL.SubmitRead(ctx, func(ctx context.Context) (interface{}, error) {
		return gw.planner.GetSearchByTags(ctx, q)
	}).Wait(ctx)
	if err != nil {
		return gqlquery.Page{}, err
	}
	return v.(gqlquery.Page), nil
}

// NewTxDataAssembler builds the streaming transaction-data assembler of
// spec.md §4.5 over this gateway's core store (as ChainSource) and the
// caller-supplied chunk source, typically wrapped in a txdata.Cache.
// The chunk fetcher's network protocol is out of scope (spec.md §1); the
// gateway only supplies the chain-side half of the assembler.
func (gw *Gateway) NewTxDataAssembler(chunks txdata.ChunkSource) *txdata.Assembler {
	return txdata.New(&chainSourceAdapter{gw: gw}, chunks)
}

type chainSourceAdapter struct{ gw *Gateway }

// GetDataRoot returns the transaction's own chain-level data_root -- the
// Merkle root getTxData's caller validates streamed chunks against, per
// spec.md §4.5 -- not the data store's resolved content hash, which answers
// a different question (what content an id/hash ultimately names).
func (a *chainSourceAdapter) GetDataRoot(ctx context.Context, txID []byte) ([]byte, error) {
	var root, ok, err = a.gw.GetTransactionDataRoot(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("no data root for transaction %x", txID)
	}
	return root, nil
}

// GetOffsetAndSize resolves an ordinary top-level transaction's absolute
// weave range from tx_offsets (spec.md §4.5's primary case: getTxData on a
// tx id). A bundled data item has no tx_offsets row of its own -- only a
// nested_data_ids/nested_data_hashes range relative to its bundle parent --
// so that case falls back to the data store's nested-range index.
func (a *chainSourceAdapter) GetOffsetAndSize(ctx context.Context, txID []byte) (int64, int64, error) {
	var offset, size, ok, err = a.gw.GetTxOffset(ctx, txID)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		return offset, size, nil
	}

	var parent, ok2, err2 = a.gw.GetDataParent(ctx, txID)
	if err2 != nil {
		return 0, 0, err2
	}
	if !ok2 {
		return 0, 0, errors.Errorf("no offset/size for transaction %x", txID)
	}
	return parent.DataOffset, parent.DataSize, nil
}
