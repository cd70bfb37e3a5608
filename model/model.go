// Package model defines the persistent domain types of the gateway indexing
// core: blocks, transactions, tags, data items, bundle records, and the
// content-data and moderation entities they resolve through.
package model

// Block is a chain block as described by the attributes in spec.md §3.
type Block struct {
	Height                int64
	IndepHash             []byte
	PreviousBlock         []byte
	Nonce                 []byte
	MiningHash            []byte
	Timestamp             int64
	Diff                  string
	CumulativeDiff        string
	LastRetarget          int64
	RewardAddr            []byte // empty when unclaimed
	RewardPool            string
	BlockSize             int64
	WeaveSize             int64
	USDToARRateDividend   int64
	USDToARRateDivisor    int64
	ScheduledRateDividend int64
	ScheduledRateDivisor  int64
	HashListMerkle        []byte
	WalletListHash        []byte
	TxRoot                []byte
	TxCount               int64
	MissingTxCount        int64
}

// Transaction is a chain transaction as described in spec.md §3.
type Transaction struct {
	ID            []byte
	Signature     []byte
	Format        int64
	LastTx        []byte
	OwnerAddress  []byte
	Target        []byte
	Quantity      string // big-integer, decimal text
	Reward        string // big-integer, decimal text
	DataSize      int64
	DataRoot      []byte
	TagCount      int64
	ContentType   string
	CreatedAt     int64
	IndexedAt     int64
	Height        *int64 // nil until block-linked
	BlockTxIndex  *int64
	Tags          []Tag
}

// Tag is a single (name, value) pair attached to a transaction or data item.
type Tag struct {
	Name  []byte
	Value []byte
}

// DataItem is a bundled sub-transaction, spec.md §3.
type DataItem struct {
	ID            []byte
	ParentID      []byte
	RootTxID      []byte
	OwnerAddress  []byte
	Anchor        []byte
	Signature     []byte
	Target        []byte
	DataOffset    int64
	DataSize      int64
	TagCount      int64
	ContentType   string
	Height        *int64
	IndexedAt     int64
	Filter        string
	Tags          []Tag
}

// BundleRecord tracks the lifecycle of a bundle, spec.md §3.
type BundleRecord struct {
	ID                  []byte
	RootTxID            []byte
	Format              string
	UnbundleFilter      string
	IndexFilter         string
	DataItemCount       *int64
	MatchedDataItemCount *int64
	QueuedAt            *int64
	SkippedAt           *int64
	UnbundledAt         *int64
	FullyIndexedAt      *int64
}

// DataContentAttributes describes a resolved content hash, spec.md §3
// "data-index entities".
type DataContentAttributes struct {
	ID                       []byte
	DataRoot                 []byte // optional
	Hash                     []byte
	DataSize                 int64
	OriginalSourceContentType string
	CachedAt                 *int64
	IndexedAt                int64
}

// DataParent describes the nested_data_ids/nested_data_hashes relation of an
// id or hash to an enclosing parent, used by getDataParent.
type DataParent struct {
	ParentID   []byte
	DataOffset int64
	DataSize   int64
}

// SortOrder selects the total ordering direction used by the query planner.
type SortOrder int

const (
	HeightDesc SortOrder = iota
	HeightAsc
)

// MatchMode parameterizes getGqlSearchByTags's tag value predicate.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchWildcard
	MatchFuzzyAnd
	MatchFuzzyOr
)
