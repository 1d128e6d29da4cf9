package sqltxncmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sqltxn.dev/core/http_gateway"
	mbp "go.sqltxn.dev/core/mainboilerplate"
	"go.sqltxn.dev/core/task"
	"go.sqltxn.dev/core/txnstore"
)

type cmdServe struct {
	Service     mbp.ServiceConfig     `group:"Service" namespace:"service" env-namespace:"SERVICE"`
	Diagnostics mbp.DiagnosticsConfig `group:"Diagnostics" namespace:"diag" env-namespace:"DIAG"`
}

func init() {
	CommandRegistry.AddCommand("", "serve", "Serve transactions over HTTP", `
Serve the configured store over HTTP until signaled to exit.

Transactions are POST-ed to "/" as JSON, and are answered with a JSON
response. A simple query may also be issued as a GET of
"/?sql=SELECT+...&version=N&compatible=M", which initializes the store and
reads the query.

Transactions are applied one at a time, in the order they arrive.

If --database.memory-limit is set, Go heap use is sampled at
--database.monitor-interval, and the store is asked to release cached memory
as heap use approaches the limit.

Metrics are served at /debug/metrics, and a readiness check at /debug/ready.

Example:

sqltxn serve --database.path=ledger.db --database.memory-limit=512MiB --service.port=8080
`, &cmdServe{})
}

func (cmd *cmdServe) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(cmd.Diagnostics)()
	startup()

	var db, err = newDatabase()
	if err != nil {
		return err
	}
	var runner = txnstore.NewRunner(db)

	monitor, err := BaseCfg.Database.NewMonitor(runner.NotifyPressure)
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", cmd.Service.ListenAddr())
	if err != nil {
		return errors.WithMessage(err, "failed to bind service address")
	}

	log.WithFields(log.Fields{
		"id":      cmd.Service.ProcessID(),
		"addr":    listener.Addr().String(),
		"driver":  db.Dialect.Driver,
		"path":    db.Path,
		"version": mbp.Version,
	}).Info("serving sqltxn")

	var tasks = task.NewGroup(context.Background())
	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	tasks.Queue("watch signals", func() error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			tasks.Cancel()
		case <-tasks.Context().Done():
		}
		return nil
	})
	queueServeTasks(tasks, runner, monitor.Serve, listener)

	tasks.GoRun()
	return tasks.Wait()
}

// queueServeTasks queues to |tasks| the Runner's loop, the memory monitor,
// and an HTTP server of the Runner on |listener|.
func queueServeTasks(tasks *task.Group, runner *txnstore.Runner, monitor func(context.Context) error, listener net.Listener) {
	var srv = &http.Server{
		Handler:           newServeMux(runner),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tasks.Queue("runner.Serve", func() error {
		if err := runner.Serve(tasks.Context()); err != context.Canceled {
			return err
		}
		return nil
	})
	tasks.Queue("monitor.Serve", func() error {
		return monitor(tasks.Context())
	})
	tasks.Queue("http.Serve", func() error {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	tasks.Queue("http.Shutdown", func() error {
		<-tasks.Context().Done()

		var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// newServeMux routes /debug/ to diagnostics of http.DefaultServeMux,
// and all other paths to a Gateway of the Runner.
func newServeMux(runner *txnstore.Runner) *http.ServeMux {
	var mux = http.NewServeMux()
	mux.Handle("/debug/", http.DefaultServeMux)
	mux.Handle("/", http_gateway.NewGateway(runner))
	return mux
}
