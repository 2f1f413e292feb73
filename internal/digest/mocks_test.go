package digest_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/offhours-digest/internal/models"
	"github.com/PratikDhanave/offhours-digest/internal/slack"
	"github.com/PratikDhanave/offhours-digest/internal/store"
)

type mockEvents struct {
	queryFn func(ctx context.Context, from, to time.Time) ([]models.EventRecord, error)
}

func (m *mockEvents) QueryEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error) {
	return m.queryFn(ctx, from, to)
}

type mockExporter struct {
	calls   int
	name    string
	records []models.EventRecord
	url     string
	err     error
}

func (m *mockExporter) Export(_ context.Context, name string, records []models.EventRecord) (string, error) {
	m.calls++
	m.name = name
	m.records = records
	return m.url, m.err
}

type mockNotifier struct {
	posts [][]slack.Block
	err   error
}

func (m *mockNotifier) PostMessage(_ context.Context, blocks []slack.Block) (string, error) {
	m.posts = append(m.posts, blocks)
	return `{"ok":true}`, m.err
}

type mockPruner struct {
	calls int
}

func (m *mockPruner) PruneAll(context.Context, ...store.Table) { m.calls++ }

type mockExportStore struct {
	id      uuid.UUID
	name    string
	content []byte
}

func (m *mockExportStore) CreateExport(_ context.Context, name string, content []byte) (uuid.UUID, error) {
	m.name, m.content = name, content
	return m.id, nil
}
