package detached

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

const defaultTimeout = 10 * time.Second

// Runner starts fire-and-forget work off the request path. A task gets its
// own context bounded by the runner timeout, never the caller's, so it
// outlives the request that spawned it. Errors and panics are logged and
// never returned.
type Runner struct {
	timeout time.Duration
	sync    bool
	wg      sync.WaitGroup
	log     *logger.Entry
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{
		timeout: timeout,
		log:     logger.WithField("component", "DetachedRunner"),
	}
}

// NewSyncRunner runs every task inline before Go returns. Used by tests and one-shot commands.
func NewSyncRunner() *Runner {
	r := NewRunner(defaultTimeout)
	r.sync = true
	return r
}

// Go runs fn in the background.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	if r == nil {
		return
	}

	r.wg.Add(1)
	if r.sync {
		r.run(name, fn)
		return
	}
	go r.run(name, fn)
}

func (r *Runner) run(name string, fn func(ctx context.Context) error) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	started := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		r.log.WithFields(map[string]interface{}{
			"task":     name,
			"duration": time.Since(started).String(),
		}).WithError(err).Warn("Detached task failed")
		return
	}

	r.log.WithFields(map[string]interface{}{
		"task":     name,
		"duration": time.Since(started).String(),
	}).Debug("Detached task done")
}

// Wait blocks until every started task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
