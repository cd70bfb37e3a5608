// Package mainboilerplate carries the ambient CLI/process concerns common
// to this module's one binary: logging setup, fatal-error handling, metrics
// and liveness endpoints, and go-flags config parsing (INI + env + flags).
//
// Adapted from the teacher's v2/pkg/mainboilerplate and root mainboilerplate
// packages, trimmed of everything specific to a gRPC broker process
// (AddressConfig, EtcdConfig, ServiceConfig, grpc tracing) since this
// module's process is a local, non-clustered indexing core (spec.md §1).
package mainboilerplate

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog configures the package-global logger.
func InitLog(cfg LogConfig) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

// DiagnosticsConfig configures pull-based metrics and liveness serving.
type DiagnosticsConfig struct {
	Port string `long:"port" env:"PORT" default:":8081" description:"Address to serve /debug/metrics and /debug/ready on"`
}

// ServeDiagnostics starts an HTTP server exposing Prometheus metrics at
// /debug/metrics and a liveness check at /debug/ready, returning once the
// listener is up. Serving happens on a background goroutine; a failure to
// bind is fatal, mirroring the teacher's Must-on-setup-error convention.
func ServeDiagnostics(cfg DiagnosticsConfig) {
	var mux = http.NewServeMux()
	mux.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/debug/metrics", promhttp.Handler())

	var ln, err = net.Listen("tcp", cfg.Port)
	Must(err, "binding diagnostics listener", "port", cfg.Port)

	go func() {
		Must(http.Serve(ln, mux), "diagnostics server exited")
	}()
}

// Must panics if err is non-nil, supplying msg and extra as the fields of
// the generated panic log entry. extra is a flat (key, value, key, value...)
// list, the teacher's convention (v2/pkg/mainboilerplate/diagnostics.go).
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		if key, ok := extra[i].(string); ok {
			f[key] = extra[i+1]
		}
	}
	log.WithFields(f).Panic(msg)
}

// MustParseConfig parses parser from an optional INI file named configName
// (searched for in the working directory and $HOME/.config/chainindex),
// then from the environment and command-line flags, per the teacher's
// mainboilerplate/config.go idiom.
func MustParseConfig(parser *flags.Parser, configName string) {
	var origOptions = parser.Options
	parser.Options |= flags.IgnoreUnknown

	var iniParser = flags.NewIniParser(parser)
	var prefixes = []string{".", filepath.Join(os.Getenv("HOME"), ".config", "chainindex")}
	for _, prefix := range prefixes {
		var path = filepath.Join(prefix, configName)
		if err := iniParser.ParseFile(path); err == nil {
			break
		} else if !os.IsNotExist(err) {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	parser.Options = origOptions
	MustParseArgs(parser)
}

// MustParseArgs requires that parser parse os.Args without error, printing
// usage and exiting on failure.
func MustParseArgs(parser *flags.Parser) {
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		var flagErr, ok = err.(*flags.Error)
		if !ok {
			Must(err, "fatal error")
		}
		switch flagErr.Type {
		case flags.ErrCommandRequired:
			os.Stderr.WriteString("\n")
			parser.WriteHelp(os.Stderr)
			os.Exit(1)
		case flags.ErrHelp:
			if parser.Options&flags.PrintErrors == 0 {
				parser.WriteHelp(os.Stderr)
			}
			os.Exit(1)
		default:
			os.Exit(1)
		}
	}
}

// AddPrintConfigCmd registers a "print-config" command that writes the
// combined configuration to stdout in INI format, for operators to verify
// their configuration before running the real command.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	_, _ = parser.AddCommand("print-config", "Print combined configuration and exit", `
print-config parses the combined configuration from `+configName+`, flags,
and environment variables, and then writes the configuration to stdout in
INI format.
`, &printConfig{parser})
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
}

func (p printConfig) Execute([]string) error {
	var ini = flags.NewIniParser(p.Parser)
	ini.Write(os.Stdout, flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
