package users

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PratikDhanave/offhours-digest/internal/models"
	"github.com/PratikDhanave/offhours-digest/internal/notion"
)

type mockLookup struct {
	getUserFn func(ctx context.Context, id string) (notion.User, error)
	calls     int
}

func (m *mockLookup) GetUser(ctx context.Context, id string) (notion.User, error) {
	m.calls++
	return m.getUserFn(ctx, id)
}

func withAuthor(id string) models.InboundEvent {
	return models.InboundEvent{Authors: []models.Author{{ID: id}}}
}

func TestResolvePriority(t *testing.T) {
	lookup := &mockLookup{getUserFn: func(_ context.Context, id string) (notion.User, error) {
		return notion.User{ID: id, Name: "Looked Up"}, nil
	}}

	tests := []struct {
		name string
		ev   models.InboundEvent
		want string
	}{
		{
			name: "actor name wins",
			ev: models.InboundEvent{
				Actor:   &models.Actor{Name: "Alice", Person: &models.Person{Email: "a@x.io"}},
				Authors: []models.Author{{ID: "u1"}},
			},
			want: "Alice",
		},
		{
			name: "actor email when no name",
			ev: models.InboundEvent{
				Actor:   &models.Actor{Person: &models.Person{Email: "a@x.io"}},
				Authors: []models.Author{{ID: "u1"}},
			},
			want: "a@x.io",
		},
		{
			name: "first author looked up",
			ev:   models.InboundEvent{Authors: []models.Author{{ID: "u1"}, {ID: "u2"}}},
			want: "Looked Up",
		},
		{
			name: "nothing known",
			ev:   models.InboundEvent{},
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(lookup, NewMemoryCache(), time.Hour)
			if got := r.Resolve(context.Background(), tt.ev); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestResolveLookupFallbacks(t *testing.T) {
	tests := []struct {
		name string
		user notion.User
		want string
	}{
		{"name", notion.User{Name: "Bob", Person: &notion.Person{Email: "b@x.io"}}, "Bob"},
		{"email", notion.User{Person: &notion.Person{Email: "b@x.io"}}, "b@x.io"},
		{"id", notion.User{}, "u-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &mockLookup{getUserFn: func(context.Context, string) (notion.User, error) {
				return tt.user, nil
			}}
			r := NewResolver(lookup, nil, time.Hour)
			if got := r.Resolve(context.Background(), withAuthor("u-42")); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestResolveCachesSuccess(t *testing.T) {
	lookup := &mockLookup{getUserFn: func(context.Context, string) (notion.User, error) {
		return notion.User{Name: "Carol"}, nil
	}}
	r := NewResolver(lookup, NewMemoryCache(), time.Hour)

	for i := 0; i < 3; i++ {
		if got := r.Resolve(context.Background(), withAuthor("u1")); got != "Carol" {
			t.Fatalf("got %q", got)
		}
	}
	if lookup.calls != 1 {
		t.Fatalf("expected 1 lookup, got %d", lookup.calls)
	}
}

func TestResolveFailureIsNotCached(t *testing.T) {
	fail := true
	lookup := &mockLookup{getUserFn: func(context.Context, string) (notion.User, error) {
		if fail {
			return notion.User{}, &notion.StatusError{StatusCode: 404}
		}
		return notion.User{Name: "Dave"}, nil
	}}
	r := NewResolver(lookup, NewMemoryCache(), time.Hour)

	if got := r.Resolve(context.Background(), withAuthor("u1")); got != Unknown {
		t.Fatalf("got %q want %q", got, Unknown)
	}
	fail = false
	if got := r.Resolve(context.Background(), withAuthor("u1")); got != "Dave" {
		t.Fatalf("got %q after recovery", got)
	}
}

func TestResolveTransportError(t *testing.T) {
	lookup := &mockLookup{getUserFn: func(context.Context, string) (notion.User, error) {
		return notion.User{}, errors.New("dial tcp: timeout")
	}}
	r := NewResolver(lookup, nil, 0)
	if got := r.Resolve(context.Background(), withAuthor("u1")); got != Unknown {
		t.Fatalf("got %q", got)
	}
}

type recordingDebugLog struct {
	labels []string
	values []any
}

func (d *recordingDebugLog) Log(_ context.Context, label string, v any) {
	d.labels = append(d.labels, label)
	d.values = append(d.values, v)
}

func TestResolveFailureGoesToDebugLog(t *testing.T) {
	lookup := &mockLookup{getUserFn: func(ctx context.Context, id string) (notion.User, error) {
		if id == "ok" {
			return notion.User{Name: "Erin"}, nil
		}
		return notion.User{}, &notion.StatusError{StatusCode: 404}
	}}
	dbg := &recordingDebugLog{}
	r := NewResolver(lookup, nil, 0, WithDebugLog(dbg))

	r.Resolve(context.Background(), withAuthor("ok"))
	if len(dbg.labels) != 0 {
		t.Fatalf("successful lookup must not be logged, got %v", dbg.labels)
	}

	r.Resolve(context.Background(), withAuthor("missing"))
	if len(dbg.labels) != 1 || dbg.labels[0] != "resolve_user_error" {
		t.Fatalf("labels = %v", dbg.labels)
	}
	if m, ok := dbg.values[0].(map[string]string); !ok || m["user_id"] != "missing" || m["error"] == "" {
		t.Fatalf("value = %#v", dbg.values[0])
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "u1", "Eve", time.Hour)
	if v, ok := c.Get(context.Background(), "u1"); !ok || v != "Eve" {
		t.Fatalf("got %q %v", v, ok)
	}

	now = now.Add(time.Hour)
	if _, ok := c.Get(context.Background(), "u1"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	client.Del(ctx, redisKeyPrefix+"test-user")

	c := NewRedisCache(client)
	if _, ok := c.Get(ctx, "test-user"); ok {
		t.Fatal("expected miss")
	}
	c.Set(ctx, "test-user", "Frank", time.Minute)
	if v, ok := c.Get(ctx, "test-user"); !ok || v != "Frank" {
		t.Fatalf("got %q %v", v, ok)
	}
	if ttl := client.TTL(ctx, redisKeyPrefix+"test-user").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
