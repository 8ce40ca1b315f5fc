package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-clinica/internal/lock"
)

// Worker polls for due deliveries and pushes them out. Only one replica
// works at a time: each cycle runs under a distributed lock and the others
// skip the cycle.
type Worker struct {
	Dispatcher *Dispatcher
	Locker     lock.Locker
	LockKey    string
	LockTTL    time.Duration
	Interval   time.Duration
	Batch      int
	Log        zerolog.Logger
}

// Run blocks until the context is cancelled.
func (w Worker) Run(ctx context.Context) error {
	if w.Dispatcher == nil {
		return errors.New("notify worker: dispatcher not configured")
	}
	interval := w.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	key := w.LockKey
	if key == "" {
		key = "lock:webhook-worker"
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		ran, err := w.Locker.TryWithLock(ctx, key, ttl, func(ctx context.Context) error {
			return w.Dispatcher.WorkOnce(ctx, w.Batch)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			w.Log.Error().Err(err).Msg("webhook delivery cycle failed")
		}
		if !ran {
			w.Log.Debug().Msg("webhook worker lock held elsewhere, skipping cycle")
		}
	}
}
