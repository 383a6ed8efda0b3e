package taxonomy

import (
	"context"
	"log/slog"
)

// Catalog is the read side of the taxonomy API used by the wizard.
type Catalog interface {
	VehicleTypes(ctx context.Context) ([]Option, error)
	Makes(ctx context.Context, vehicleType string) ([]Option, error)
	Models(ctx context.Context, makeID string) ([]Option, error)
	Generations(ctx context.Context, model string) ([]Option, error)
	Derivatives(ctx context.Context, generation string) ([]Derivative, error)
	Years(ctx context.Context, derivative string) ([]YearOption, error)
	Value(ctx context.Context, req ValuationRequest) (Valuation, error)
}

// Observer records lookup outcomes; observability.Metrics satisfies it.
type Observer interface {
	ObserveTaxonomy(resource, result string)
}

// CachedCatalog puts the Redis cache and request coalescing in front of a Catalog.
// Valuations are never cached.
type CachedCatalog struct {
	next     Catalog
	cache    *Cache
	observer Observer
	logger   *slog.Logger
}

// NewCachedCatalog wraps next.
func NewCachedCatalog(next Catalog, cache *Cache, observer Observer, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{next: next, cache: cache, observer: observer, logger: logger}
}

func (c *CachedCatalog) VehicleTypes(ctx context.Context) ([]Option, error) {
	return cached(ctx, c, "vehicle-types", "", c.next.VehicleTypes)
}

func (c *CachedCatalog) Makes(ctx context.Context, vehicleType string) ([]Option, error) {
	return cachedBy(ctx, c, "makes", vehicleType, c.next.Makes)
}

func (c *CachedCatalog) Models(ctx context.Context, makeID string) ([]Option, error) {
	return cachedBy(ctx, c, "models", makeID, c.next.Models)
}

func (c *CachedCatalog) Generations(ctx context.Context, model string) ([]Option, error) {
	return cachedBy(ctx, c, "generations", model, c.next.Generations)
}

func (c *CachedCatalog) Derivatives(ctx context.Context, generation string) ([]Derivative, error) {
	return cachedBy(ctx, c, "derivatives", generation, c.next.Derivatives)
}

func (c *CachedCatalog) Years(ctx context.Context, derivative string) ([]YearOption, error) {
	return cachedBy(ctx, c, "years", derivative, c.next.Years)
}

func (c *CachedCatalog) Value(ctx context.Context, req ValuationRequest) (Valuation, error) {
	v, err := c.next.Value(ctx, req)
	c.observe("valuations", resultOf(false, err))
	return v, err
}

func cachedBy[T any](ctx context.Context, c *CachedCatalog, resource, arg string, load func(context.Context, string) ([]T, error)) ([]T, error) {
	return cached(ctx, c, resource, arg, func(ctx context.Context) ([]T, error) {
		return load(ctx, arg)
	})
}

func cached[T any](ctx context.Context, c *CachedCatalog, resource, arg string, load func(context.Context) ([]T, error)) ([]T, error) {
	key, err := c.cache.BuildKey(ctx, resource, arg)
	if err != nil {
		c.logger.Warn("taxonomy cache key", slog.String("resource", resource), slog.Any("error", err))
		out, err := load(ctx)
		c.observe(resource, resultOf(false, err))
		return out, err
	}
	var out []T
	hit, err := c.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return singleflightFetch(ctx, key, func(ctx context.Context) (any, error) {
			return load(ctx)
		})
	})
	c.observe(resource, resultOf(hit, err))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func resultOf(hit bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case hit:
		return "hit"
	}
	return "miss"
}

func (c *CachedCatalog) observe(resource, result string) {
	if c.observer != nil {
		c.observer.ObserveTaxonomy(resource, result)
	}
}
