package core

import (
	"context"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ListenerConfig controls how the listener re-subscribes after the update
// stream ends abnormally.
type ListenerConfig struct {
	RestartDelay    time.Duration // first retry delay, default 1s
	MaxRestartDelay time.Duration // backoff cap, default 30s
}

func (c *ListenerConfig) defaulted() ListenerConfig {
	out := ListenerConfig{}
	if c != nil {
		out = *c
	}
	if out.RestartDelay <= 0 {
		out.RestartDelay = time.Second
	}
	if out.MaxRestartDelay < out.RestartDelay {
		out.MaxRestartDelay = 30 * time.Second
		if out.MaxRestartDelay < out.RestartDelay {
			out.MaxRestartDelay = out.RestartDelay
		}
	}
	return out
}

// Listener is the single background task that feeds the update stream into
// a Reconciler for the lifetime of its owner.
type Listener struct {
	rec *Reconciler
	src UpdateSource
	cfg ListenerConfig
	log logrus.FieldLogger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewListener(rec *Reconciler, src UpdateSource, cfg *ListenerConfig) *Listener {
	return &Listener{
		rec:  rec,
		src:  src,
		cfg:  cfg.defaulted(),
		log:  rec.log.WithField("component", "listener"),
		done: make(chan struct{}),
	}
}

// Start launches the listening goroutine. Later calls, and calls after Stop,
// do nothing.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop cancels the listening task once and waits for it to exit, so no
// record is being applied when Stop returns.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	started, cancel := l.started, l.cancel
	l.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-l.done
}

// Done is closed when the listening goroutine has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.RestartDelay
	b.MaxInterval = l.cfg.MaxRestartDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	b := l.newBackOff()
	for {
		updates, err := l.src.Updates(ctx)
		if err == nil {
			b.Reset()
			err = l.rec.Listen(ctx, updates)
		}
		if ctx.Err() != nil {
			l.log.Debug("transaction listener stopped")
			return
		}
		delay := b.NextBackOff()
		l.log.WithError(err).WithField("retry_in", delay.String()).Warn("transaction update stream ended; resubscribing")
		l.rec.obs.ListenerRestarted()

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
