// Package voicelog writes one audit record per capture, clone or synthesis
// attempt and reads history back for display and catalog reconstruction.
package voicelog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voiceback/voiceback/internal/notify"
	"github.com/voiceback/voiceback/internal/observability"
	"github.com/voiceback/voiceback/internal/store"
)

// Log is the generation/audit log. Record is best-effort by contract: a
// persistence failure never interrupts the pipeline that triggered it.
type Log struct {
	store      store.Store
	collection string
	notifier   notify.Notifier
	metrics    *observability.Metrics
	writable   atomic.Bool
}

func New(s store.Store, collection string, notifier notify.Notifier, metrics *observability.Metrics) *Log {
	l := &Log{store: s, collection: collection, notifier: notifier, metrics: metrics}
	l.writable.Store(true)
	return l
}

// SetWritable gates whether writes are attempted at all. The startup
// connection check turns writes off when the store is unusable, so the
// pipeline does not produce a failure notification per operation.
func (l *Log) SetWritable(ok bool) { l.writable.Store(ok) }

// Record persists one entry. It never returns an error: failures surface as
// a single non-fatal notification and a metric, nothing more. The primary
// operation already completed by the time this runs.
func (l *Log) Record(ctx context.Context, r Record) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	if !l.writable.Load() {
		return
	}

	if err := l.store.Insert(ctx, l.collection, r.toRow()); err != nil {
		l.metrics.LogWriteFailures.Inc()
		l.notifier.Error("Error Saving Voice Log", err.Error())
	}
}

// Filter narrows a List call. Zero values mean no constraint.
type Filter struct {
	Kind    Kind
	OwnerID string
	Limit   int
}

// List returns records newest first. Filters are applied by the store where
// possible; callers apply their own display limit on top.
func (l *Log) List(ctx context.Context, f Filter) ([]Record, error) {
	q := store.Query{
		OrderBy:    "created_at",
		Descending: true,
		Limit:      f.Limit,
	}
	if f.Kind != "" || f.OwnerID != "" {
		q.Filter = map[string]any{}
		if f.Kind != "" {
			q.Filter["kind"] = string(f.Kind)
		}
		if f.OwnerID != "" {
			q.Filter["user_id"] = f.OwnerID
		}
	}

	rows, err := l.store.Select(ctx, l.collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, recordFromRow(row))
	}
	return out, nil
}

// Get returns a single record by id.
func (l *Log) Get(ctx context.Context, id string) (Record, bool, error) {
	rows, err := l.store.Select(ctx, l.collection, store.Query{
		Filter: map[string]any{"id": id},
		Limit:  1,
	})
	if err != nil {
		return Record{}, false, err
	}
	if len(rows) == 0 {
		return Record{}, false, nil
	}
	return recordFromRow(rows[0]), true, nil
}
