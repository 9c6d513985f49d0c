package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/michalholes/audiomason2-sub000/internal/queue"
)

// Run acquires the patches-root lock, starts the worker pool, and blocks
// until interrupted (SIGINT or SIGTERM); it does not return on its own
// when the queue is empty or paused.
func (c *ServeCmd) Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lockKey := app.Cfg.Roots.Inbox
	lock, err := queue.AcquireLock(ctx, app.FS, lockKey)
	if err != nil {
		return fmt.Errorf("acquire patches-root lock: %w", err)
	}
	defer lock.Release(context.Background())

	queueState, err := queue.NewStateStore(ctx, app.FS)
	if err != nil {
		return fmt.Errorf("open queue state: %w", err)
	}

	workers := clampWorkers(c.Workers)
	if c.Workers == 0 {
		workers = clampWorkers(app.Cfg.Queue.Workers)
	}

	pool := queue.NewPool(app.Store, app.Jobs, app.RunStates, queueState, app.Bus, workers, app.Runner.Handle)
	pool.Start(ctx)
	fmt.Fprintf(os.Stderr, "wizard: serving with %d worker(s), Ctrl-C to stop\n", workers)

	<-ctx.Done()
	pool.Stop()
	return nil
}
