// Package config defines the gateway indexing core's process configuration:
// store file paths, fork-depth and flush-cadence constants, and per-pool
// worker counts. It follows the teacher's mainboilerplate/config.go idiom
// of a jessevdk/go-flags struct parsed from INI + environment + flags, kept
// here as a plain struct so the core can be constructed in-process by tests
// and by cmd/gatewayindex alike, independent of CLI/transport concerns
// (which spec.md §1 places out of scope).
package config

import "time"

// Store file paths, per spec.md §6 ("Store layout").
type StorePaths struct {
	CoreDBPath       string `long:"core-db-path" env:"CORE_DB_PATH" description:"path to the core store file"`
	BundlesDBPath    string `long:"bundles-db-path" env:"BUNDLES_DB_PATH" description:"path to the bundles store file"`
	DataDBPath       string `long:"data-db-path" env:"DATA_DB_PATH" description:"path to the data store file"`
	ModerationDBPath string `long:"moderation-db-path" env:"MODERATION_DB_PATH" description:"path to the moderation store file"`
}

// PoolConfig carries the reader/writer counts of one named worker pool,
// per spec.md §4.3.
type PoolConfig struct {
	Readers int
	Writers int
}

// PoolsConfig carries the six named pools of spec.md §4.3's scheduling
// contract.
type PoolsConfig struct {
	Core       PoolConfig
	Data       PoolConfig
	Moderation PoolConfig
	Bundles    PoolConfig
	Debug      PoolConfig
	GQL        PoolConfig
}

// DefaultPools returns the pool sizing spec.md §4.3 names literally.
func DefaultPools(hostCPUs int) PoolsConfig {
	var gqlReaders = hostCPUs
	if gqlReaders > MaxWorkerCount {
		gqlReaders = MaxWorkerCount
	}
	if gqlReaders < 1 {
		gqlReaders = 1
	}
	return PoolsConfig{
		Core:       PoolConfig{Readers: 1, Writers: 1},
		Data:       PoolConfig{Readers: 2, Writers: 1},
		Moderation: PoolConfig{Readers: 1, Writers: 1},
		Bundles:    PoolConfig{Readers: 1, Writers: 1},
		Debug:      PoolConfig{Readers: 1, Writers: 0},
		GQL:        PoolConfig{Readers: gqlReaders, Writers: 0},
	}
}

// Constants named in spec.md §6.
const (
	DefaultMaxForkDepth          = 50
	StableFlushInterval          = 5
	NewTxCleanupWait             = 2 * time.Hour
	NewDataItemCleanupWait       = 2 * time.Hour
	BundleReprocessWait          = 4 * time.Hour
	MaxWorkerCount               = 12
	MaxWorkerErrors              = 100
)

// LowSelectivityTagNames are sorted last in the query planner's tag-join
// ordering, per spec.md §4.4.
var LowSelectivityTagNames = map[string]bool{
	"App-Name":     true,
	"Content-Type": true,
}

// BreakerConfig carries the two data-index circuit breakers' tunables of
// spec.md §4.8 ("timeout configurable, 50% error rate over a 5-s rolling
// window trips, 10-s reset").
type BreakerConfig struct {
	Timeout      time.Duration `long:"breaker-timeout" env:"BREAKER_TIMEOUT" default:"2s" description:"per-call timeout before a data-index breaker counts a request as failed"`
	Window       time.Duration `long:"breaker-window" env:"BREAKER_WINDOW" default:"5s" description:"rolling window over which the breaker's error rate is computed"`
	ErrorRatio   float64       `long:"breaker-error-ratio" env:"BREAKER_ERROR_RATIO" default:"0.5" description:"error rate over the window that trips the breaker"`
	ResetTimeout time.Duration `long:"breaker-reset-timeout" env:"BREAKER_RESET_TIMEOUT" default:"10s" description:"time an open breaker waits before allowing a trial request"`
}

// DefaultBreaker returns spec.md §4.8's literal breaker parameterization.
func DefaultBreaker() BreakerConfig {
	return BreakerConfig{Timeout: 2 * time.Second, Window: 5 * time.Second, ErrorRatio: 0.5, ResetTimeout: 10 * time.Second}
}

// Config is the complete process configuration of the indexing core.
type Config struct {
	StorePaths
	MaxForkDepth int64
	Pools        PoolsConfig
	Breaker      BreakerConfig
}

// Default returns a Config suitable for tests: in-memory stores (empty
// paths), the spec's default fork depth, and the pools DefaultPools sizes
// for a host with hostCPUs logical CPUs.
func Default(hostCPUs int) Config {
	return Config{
		MaxForkDepth: DefaultMaxForkDepth,
		Pools:        DefaultPools(hostCPUs),
		Breaker:      DefaultBreaker(),
	}
}
