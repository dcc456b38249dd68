package orphan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Deleter removes objects by key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Result summarises one reaper pass.
type Result struct {
	Deleted  int
	Requeued int
}

// Reaper drains a Queue and deletes each key with exponential backoff.
type Reaper struct {
	queue        Queue
	store        Deleter
	log          *logrus.Logger
	buildBackoff func() backoff.BackOff
}

// NewReaper returns a Reaper. A nil factory uses an exponential backoff capped
// at 30 seconds per key.
func NewReaper(queue Queue, store Deleter, log *logrus.Logger, factory func() backoff.BackOff) *Reaper {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		}
	}
	return &Reaper{queue: queue, store: store, log: log, buildBackoff: factory}
}

// Run processes at most limit keys. Keys whose deletion still fails after
// backoff are pushed back once the pass ends, so each key is attempted at
// most once per pass.
func (r *Reaper) Run(ctx context.Context, limit int) (res Result, err error) {
	var failed []string
	defer func() {
		for _, key := range failed {
			if pushErr := r.queue.Push(context.WithoutCancel(ctx), key); pushErr != nil {
				err = errors.Join(err, fmt.Errorf("requeue %q after failed delete: %w", key, pushErr))
				continue
			}
			res.Requeued++
		}
	}()

	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key, err := r.queue.Pop(ctx)
		if errors.Is(err, ErrEmpty) {
			return res, nil
		}
		if err != nil {
			return res, err
		}

		if err := r.delete(ctx, key); err != nil {
			r.log.WithError(err).WithField("orphan_key", key).Warn("reaper: delete failed, requeueing")
			failed = append(failed, key)
			continue
		}

		r.log.WithField("orphan_key", key).Info("reaper: deleted orphaned object")
		res.Deleted++
	}
	return res, nil
}

func (r *Reaper) delete(ctx context.Context, key string) error {
	b := backoff.WithContext(r.buildBackoff(), ctx)
	return backoff.Retry(func() error { return r.store.Delete(ctx, key) }, b)
}
