// Command gatewayindex runs the gateway indexing core of spec.md: it opens
// the four SQLite stores, starts the six worker pools, and blocks until
// signaled to exit. It exposes no network service of its own (spec.md §1
// places the transport/API surface out of scope) -- ingestion and query
// callers are expected to be other in-process Go code (see gateway.Gateway)
// or a future command built on top of this one.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"go.chainindex.dev/core/breaker"
	"go.chainindex.dev/core/gqlquery"
	mbp "go.chainindex.dev/core/mainboilerplate"
	"go.chainindex.dev/core/workerpool"

	"go.chainindex.dev/core/config"
	"go.chainindex.dev/core/gateway"
)

const iniFilename = "gatewayindex.ini"

// Config is the top-level configuration object of the gatewayindex process.
var Config = new(struct {
	Store config.StorePaths `group:"Store" namespace:"store" env-namespace:"STORE"`

	MaxForkDepth int64                `long:"max-fork-depth" env:"MAX_FORK_DEPTH" default:"50" description:"blocks behind the tip before a row is promoted to the stable_* tables"`
	Breaker      config.BreakerConfig `group:"Breaker" namespace:"breaker" env-namespace:"BREAKER"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type serveIndex struct{}

func (serveIndex) Execute(args []string) error {
	mbp.InitLog(Config.Log)
	mbp.ServeDiagnostics(Config.Diagnostics)

	log.WithField("config", Config).Info("starting gatewayindex")

	prometheus.MustRegister(workerpool.Collectors()...)
	prometheus.MustRegister(breaker.Collectors()...)
	prometheus.MustRegister(gqlquery.Collectors()...)

	var cfg = config.Config{
		StorePaths:   Config.Store,
		MaxForkDepth: Config.MaxForkDepth,
		Pools:        config.DefaultPools(runtime.NumCPU()),
		Breaker:      Config.Breaker,
	}

	var ctx = context.Background()
	var gw, err = gateway.Open(ctx, cfg)
	mbp.Must(err, "opening gateway")
	defer gw.Close()

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	<-signalCh

	log.Info("signaled to exit; draining pools")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Run the gateway indexing core", `
Open the four store files and run the six worker pools until signaled to
exit (via SIGTERM or SIGINT). On exit, every pool finishes its queued work
before the process stops.
`, &serveIndex{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
