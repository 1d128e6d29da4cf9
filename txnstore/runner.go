package txnstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sqltxn.dev/core/pressure"
	pc "go.sqltxn.dev/core/protocol"
)

// ErrRunnerStopped is returned by Runner.RunTransaction if the Runner has
// stopped serving.
var ErrRunnerStopped = errors.New("runner stopped")

// Runner owns a Database and applies Transactions to it from a single
// goroutine, in the order they arrive. It's safe for concurrent use.
//
// Memory pressure notifications are delivered through the Runner as well,
// so that the Database observes them only between Transactions.
type Runner struct {
	db       *Database
	notifier *pressure.Notifier

	requests chan runnerRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	pressureMu      sync.Mutex
	pendingPressure pressure.Level
	pressureCh      chan struct{}
}

type runnerRequest struct {
	id       uuid.UUID
	txn      *pc.Transaction
	enqueued time.Time
	respCh   chan *pc.Response
}

// NewRunner returns a Runner which owns |db|. The Database's Pressure
// Source is replaced with one driven by NotifyPressure, and |db| must not
// be used directly by the caller once the Runner is built.
func NewRunner(db *Database) *Runner {
	var r = &Runner{
		db:         db,
		notifier:   pressure.NewNotifier(),
		requests:   make(chan runnerRequest),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		pressureCh: make(chan struct{}, 1),
	}
	db.Pressure = r.notifier
	return r
}

// Serve applies Transactions until the Context is cancelled or Stop is
// called, and then destroys the Database. Serve must be called only once.
func (r *Runner) Serve(ctx context.Context) error {
	defer close(r.doneCh)
	defer r.db.Destroy()

	for {
		select {
		case req := <-r.requests:
			r.apply(req)
		case <-r.pressureCh:
			r.deliverPressure()
		case <-r.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) apply(req runnerRequest) {
	runnerQueuedTransactions.Dec()

	var started = time.Now()
	var resp = r.db.RunTransaction(req.txn)
	req.respCh <- resp

	log.WithFields(log.Fields{
		"id":       req.id,
		"status":   resp.Status,
		"queued":   started.Sub(req.enqueued),
		"duration": time.Since(started),
	}).Debug("ran transaction")
}

func (r *Runner) deliverPressure() {
	r.pressureMu.Lock()
	var level = r.pendingPressure
	r.pendingPressure = pressure.LevelNone
	r.pressureMu.Unlock()

	if level != pressure.LevelNone {
		r.notifier.Notify(level)
	}
}

// RunTransaction hands |txn| to the serving loop and waits for its Response.
// The Context bounds only the caller's wait: a Transaction which has been
// handed off runs to completion even if the Context is cancelled.
// The Transaction is logged with the ID attached to the Context by
// protocol.WithTransactionID, or with a new ID if there is none.
func (r *Runner) RunTransaction(ctx context.Context, txn *pc.Transaction) (*pc.Response, error) {
	var id, ok = pc.GetTransactionID(ctx)
	if !ok {
		id = uuid.New()
	}
	var req = runnerRequest{
		id:       id,
		txn:      txn,
		enqueued: time.Now(),
		respCh:   make(chan *pc.Response, 1),
	}
	runnerQueuedTransactions.Inc()

	select {
	case r.requests <- req:
	case <-ctx.Done():
		runnerQueuedTransactions.Dec()
		return nil, ctx.Err()
	case <-r.doneCh:
		runnerQueuedTransactions.Dec()
		return nil, ErrRunnerStopped
	}

	select {
	case resp := <-req.respCh:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotifyPressure queues delivery of a memory pressure |level| to the
// Database. It never blocks. Notifications which arrive before the loop
// delivers a prior one are coalesced to the most severe level.
func (r *Runner) NotifyPressure(level pressure.Level) {
	if level == pressure.LevelNone {
		return
	}
	r.pressureMu.Lock()
	if level > r.pendingPressure {
		r.pendingPressure = level
	}
	r.pressureMu.Unlock()

	select {
	case r.pressureCh <- struct{}{}:
	default: // Delivery is already pending.
	}
}

// Stop signals Serve to return, and waits for it to do so.
// It must not be called before Serve.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// Done is closed when Serve has returned.
func (r *Runner) Done() <-chan struct{} { return r.doneCh }
