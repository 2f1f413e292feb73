package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/models"
)

type mockPersister struct {
	mu       sync.Mutex
	records  []models.EventRecord
	appendFn func(ctx context.Context, rec models.EventRecord) error
}

func (m *mockPersister) AppendEvent(ctx context.Context, rec models.EventRecord) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockPersister) Records() []models.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EventRecord(nil), m.records...)
}

type staticResolver string

func (s staticResolver) Resolve(context.Context, models.InboundEvent) string {
	return string(s)
}

type mockLocker struct {
	tryLockFn func(ctx context.Context, timeout time.Duration) (func(), error)
}

func (m *mockLocker) TryLock(ctx context.Context, timeout time.Duration) (func(), error) {
	return m.tryLockFn(ctx, timeout)
}

type countingSubmitter struct {
	n atomic.Int32
}

func (c *countingSubmitter) Submit() { c.n.Add(1) }

type recordingDebugLog struct {
	mu     sync.Mutex
	labels []string
	values []any
}

func (d *recordingDebugLog) Log(_ context.Context, label string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labels = append(d.labels, label)
	d.values = append(d.values, v)
}
