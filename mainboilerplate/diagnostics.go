package mainboilerplate

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // Serves /debug/pprof.
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	// Version of the program, set at build time (-ldflags "-X ...Version=v1.2.3").
	Version = "development"
	// BuildDate of the program, set at build time.
	BuildDate = "unknown"
)

// DiagnosticsConfig configures pull-based metrics and debugging services.
type DiagnosticsConfig struct {
	TerminationLog string `long:"termination-log" env:"TERMINATION_LOG" default:"/dev/termination-log" description:"Path to which a fatal panic is written for retrieval by the container runtime"`
}

// InitDiagnosticsAndRecover registers /debug/ready and /debug/metrics with
// http.DefaultServeMux, alongside /debug/pprof. It returns a closure to be
// deferred by main, which writes any panic to the configured termination
// log before re-raising it.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	http.Handle("/debug/metrics", promhttp.Handler())

	return func() {
		var r = recover()
		if r == nil {
			return
		}
		if cfg.TerminationLog != "" {
			if f, err := os.OpenFile(cfg.TerminationLog, os.O_WRONLY, 0644); err == nil {
				_, _ = fmt.Fprintf(f, "%+v", r)
				_ = f.Close()
			}
		}
		panic(r)
	}
}

// Must panics with |msg| if |err| is non-nil. |extra| are pairs of field
// names and values which are logged with the panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		fields[fmt.Sprint(extra[i])] = extra[i+1]
	}
	log.WithFields(fields).Panic(msg)
}
