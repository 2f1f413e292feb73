package users

import (
	"context"
	"log/slog"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/models"
	"github.com/PratikDhanave/offhours-digest/internal/notion"
)

// Unknown is returned when no display name can be determined.
const Unknown = "(unknown)"

const DefaultTTL = 6 * time.Hour

// Lookup fetches a user profile from the identity service.
type Lookup interface {
	GetUser(ctx context.Context, id string) (notion.User, error)
}

// DebugLog receives lookup failures when debugging is on.
type DebugLog interface {
	Log(ctx context.Context, label string, v any)
}

// Resolver maps an event to the human-readable name of whoever caused it.
type Resolver struct {
	lookup Lookup
	cache  Cache
	ttl    time.Duration
	debug  DebugLog
}

type Option func(*Resolver)

// WithDebugLog records failed lookups in d.
func WithDebugLog(d DebugLog) Option {
	return func(r *Resolver) { r.debug = d }
}

func NewResolver(lookup Lookup, cache Cache, ttl time.Duration, opts ...Option) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	r := &Resolver{lookup: lookup, cache: cache, ttl: ttl}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve never fails. Order: actor name, actor email, first author looked
// up by id, then Unknown.
func (r *Resolver) Resolve(ctx context.Context, ev models.InboundEvent) string {
	if ev.Actor != nil {
		if ev.Actor.Name != "" {
			return ev.Actor.Name
		}
		if ev.Actor.Person != nil && ev.Actor.Person.Email != "" {
			return ev.Actor.Person.Email
		}
	}

	id := ev.FirstAuthorID()
	if id == "" {
		return Unknown
	}
	return r.byID(ctx, id)
}

func (r *Resolver) byID(ctx context.Context, id string) string {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "digest.users"})

	if name, ok := r.cache.Get(ctx, id); ok {
		return name
	}
	if r.lookup == nil {
		return Unknown
	}

	u, err := r.lookup.GetUser(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "user lookup failed", "user_id", id, "error", err)
		if r.debug != nil {
			r.debug.Log(ctx, "resolve_user_error", map[string]string{"user_id": id, "error": err.Error()})
		}
		return Unknown
	}

	name := u.DisplayName(id)
	r.cache.Set(ctx, id, name, r.ttl)
	return name
}
