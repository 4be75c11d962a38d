package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/mailbox"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// ErrWatcherRunning is returned by Start on a running watcher.
var ErrWatcherRunning = errors.New("watcher already running")

// Watcher feeds mailbox notifications to the pipeline. One goroutine handles
// notifications in arrival order; each is tracked under the mailbox source.
type Watcher struct {
	pipeline *Pipeline

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for the pipeline's mail source.
func NewWatcher(p *Pipeline) *Watcher {
	return &Watcher{pipeline: p}
}

// Start subscribes to the mail source and returns once subscribed. A failed
// subscription marks the mailbox source FAILED.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrWatcherRunning
	}

	log := logger.Component(logger.FromContext(ctx), "watcher")
	runCtx, cancel := context.WithCancel(logger.WithContext(context.WithoutCancel(ctx), log))

	notifications, err := w.pipeline.source.Subscribe(runCtx)
	if err != nil {
		cancel()
		err = fmt.Errorf("Watcher.Start: subscribing: %w", err)
		w.recordFailure(ctx, err)
		return err
	}

	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(runCtx, notifications, w.done)

	log.Info().Msg("Watching mailbox")
	return nil
}

func (w *Watcher) loop(ctx context.Context, notifications <-chan mailbox.Notification, done chan struct{}) {
	defer close(done)
	log := logger.FromContext(ctx)

	for n := range notifications {
		err := w.pipeline.tracker.Track(ctx, synctracker.MailboxSource, func(ctx context.Context) error {
			_, err := w.pipeline.HandleNotification(ctx, n)
			return err
		})
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Mailbox notification failed")
		}
	}
	if ctx.Err() != nil {
		log.Info().Msg("Mailbox watcher stopped")
		return
	}
	// The source ended the subscription on its own.
	err := errors.New("mailbox subscription closed")
	log.Error().Err(err).Msg("Mailbox watcher stopped")
	w.recordFailure(ctx, err)
}

// recordFailure stores a failed mailbox run for a transport error that
// happened outside any notification.
func (w *Watcher) recordFailure(ctx context.Context, err error) {
	tracker := w.pipeline.tracker
	if _, serr := tracker.Start(ctx, synctracker.MailboxSource); serr != nil {
		return
	}
	_, _ = tracker.Fail(ctx, synctracker.MailboxSource, err)
}

// Stop cancels the subscription and waits for the loop to exit, or for ctx
// to expire. A batch in progress stops after its current message.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Watcher.Stop: %w", ctx.Err())
	}
}
