// Package task runs the long-lived serving loops of a process (the
// transaction Runner, the HTTP gateway, the memory Monitor) as a Group which
// stops together.
package task

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Group runs named tasks concurrently and waits on all of them. The first
// task to fail cancels the Context of the Group, and every task is expected
// to return promptly once that Context is Done. A Group itself is not safe
// for concurrent use.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
	queued []namedTask
	ran    bool
}

type namedTask struct {
	name string
	fn   func() error
}

// NewGroup returns an empty Group deriving from the parent Context.
func NewGroup(parent context.Context) *Group {
	var ctx, cancel = context.WithCancel(parent)
	var eg, egCtx = errgroup.WithContext(ctx)
	return &Group{ctx: egCtx, cancel: cancel, eg: eg}
}

// Context is Done when the Group is cancelled, when any task fails,
// or when the parent Context is Done.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group's Context.
func (g *Group) Cancel() { g.cancel() }

// Queue a named task. Queue panics if the Group is already running.
func (g *Group) Queue(name string, fn func() error) {
	if g.ran {
		panic("task.Group: Queue called after GoRun")
	}
	g.queued = append(g.queued, namedTask{name: name, fn: fn})
}

// GoRun starts every queued task. It panics if called more than once.
func (g *Group) GoRun() {
	if g.ran {
		panic("task.Group: GoRun called twice")
	}
	g.ran = true

	for _, t := range g.queued {
		var t = t
		g.eg.Go(func() error {
			var err = t.fn()
			log.WithFields(log.Fields{"task": t.name, "err": err}).Debug("task exited")
			return errors.WithMessage(err, t.name)
		})
	}
}

// Wait blocks until every task has returned, and returns the first error
// encountered. It panics if GoRun wasn't called.
func (g *Group) Wait() error {
	if !g.ran {
		panic("task.Group: Wait called before GoRun")
	}
	defer g.cancel()
	return g.eg.Wait()
}
