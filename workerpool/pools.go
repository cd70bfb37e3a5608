package workerpool

import "go.chainindex.dev/core/config"

// Pools is the full set of six named pools spec.md §4.3 requires: one per
// store plus the read-only gql and debug pools that share the core/bundles/
// data/moderation stores' readers without a dedicated writer lane.
type Pools struct {
	Core       *Pool
	Data       *Pool
	Moderation *Pool
	Bundles    *Pool
	Debug      *Pool
	GQL        *Pool
}

// NewPools starts every pool named in cfg.
func NewPools(cfg config.PoolsConfig) *Pools {
	return &Pools{
		Core:       New("core", cfg.Core.Readers, cfg.Core.Writers),
		Data:       New("data", cfg.Data.Readers, cfg.Data.Writers),
		Moderation: New("moderation", cfg.Moderation.Readers, cfg.Moderation.Writers),
		Bundles:    New("bundles", cfg.Bundles.Readers, cfg.Bundles.Writers),
		Debug:      New("debug", cfg.Debug.Readers, cfg.Debug.Writers),
		GQL:        New("gql", cfg.GQL.Readers, cfg.GQL.Writers),
	}
}

// Close stops and drains every pool.
func (p *Pools) Close() {
	p.Core.Close()
	p.Data.Close()
	p.Moderation.Close()
	p.Bundles.Close()
	p.Debug.Close()
	p.GQL.Close()
}
