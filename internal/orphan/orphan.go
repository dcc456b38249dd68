// Package orphan records objects left in the bucket without a referencing
// meme record and removes them out of band.
package orphan

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/memelibre/server/internal/metrics"
)

// ErrEmpty is returned by Queue.Pop when nothing is queued.
var ErrEmpty = errors.New("orphan queue empty")

// Orphan describes one object key needing garbage collection.
type Orphan struct {
	Key    string
	Reason string // metrics.OrphanReason*
	Stage  string // pipeline stage reached when the orphan was created
	Err    error  // failure that caused it
}

// Queue is a durable FIFO of orphaned keys.
type Queue interface {
	Push(ctx context.Context, key string) error
	Pop(ctx context.Context) (string, error)
}

// Reporter writes orphan reports for operators.
type Reporter struct {
	log     *logrus.Logger
	queue   Queue
	metrics *metrics.Metrics
}

// NewReporter returns a Reporter. queue and m may be nil.
func NewReporter(log *logrus.Logger, queue Queue, m *metrics.Metrics) *Reporter {
	return &Reporter{log: log, queue: queue, metrics: m}
}

// Report emits exactly one log entry for o, after trying to enqueue its key.
// It never fails: the log line is the record of last resort.
func (r *Reporter) Report(ctx context.Context, o Orphan) {
	queued := false
	var queueErr error
	if r.queue != nil {
		// The request context may already be cancelled; the push must still happen.
		queueErr = r.queue.Push(context.WithoutCancel(ctx), o.Key)
		queued = queueErr == nil
	}

	entry := r.log.WithFields(logrus.Fields{
		"orphan_key": o.Key,
		"reason":     o.Reason,
		"stage":      o.Stage,
		"queued":     queued,
	})
	if o.Err != nil {
		entry = entry.WithError(o.Err)
	}
	if queueErr != nil {
		entry = entry.WithField("queue_error", queueErr.Error())
	}
	entry.Error("orphaned object requires garbage collection")

	r.metrics.Orphan(o.Reason)
}
