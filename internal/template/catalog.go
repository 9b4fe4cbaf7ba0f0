package template

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fieldops/internal/docstore"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/platform/sentinel"
)

// Catalog is the read-only template lookup. Definitions live in the
// docstore; a redis read-through cache keeps hot templates off the database.
type Catalog struct {
	store  docstore.Store
	cache  *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache enables the redis read-through cache.
func WithCache(cache *goredis.Client, ttl time.Duration) Option {
	return func(c *Catalog) {
		c.cache = cache
		c.ttl = ttl
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// NewCatalog builds a Catalog over the given store.
func NewCatalog(store docstore.Store, opts ...Option) *Catalog {
	c := &Catalog{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup resolves a template by name. Absent templates return a not-found
// domain error naming the template.
func (c *Catalog) Lookup(ctx context.Context, name string) (*Template, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "template name is required")
	}

	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, cacheKey(name)).Bytes(); err == nil {
			var tmpl Template
			if err := json.Unmarshal(raw, &tmpl); err == nil {
				return &tmpl, nil
			}
			// Corrupt cache entry: fall through to the store.
			c.cache.Del(ctx, cacheKey(name))
		}
	}

	doc, err := c.store.Get(ctx, docstore.CollectionTemplates, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "template %q not found", name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "template lookup failed")
	}

	var tmpl Template
	if err := doc.Decode(&tmpl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "template document malformed")
	}

	if c.cache != nil {
		raw, err := json.Marshal(&tmpl)
		if err == nil {
			if err := c.cache.Set(ctx, cacheKey(name), raw, c.ttl).Err(); err != nil {
				c.logger.WarnContext(ctx, "template cache write failed",
					"template", name,
					"error", err,
				)
			}
		}
	}
	return &tmpl, nil
}

func cacheKey(name string) string {
	return "fieldops:template:" + name
}
