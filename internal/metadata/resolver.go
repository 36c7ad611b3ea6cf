package metadata

import (
	"context"
	"errors"
	"log/slog"

	"github.com/liberhq/liber/internal/resilience"
)

// errNoResults signals that a source answered but had no matching records,
// so the next source should be tried.
var errNoResults = errors.New("no results")

// Resolver searches external catalogs in priority order. Each source is
// guarded by its own circuit breaker so a degraded primary does not slow
// every lookup.
type Resolver struct {
	sources *resilience.Failover[Source]
}

// NewResolver builds a resolver over the given sources in priority order.
// At least one source is required.
func NewResolver(primary Source, fallbacks ...Source) *Resolver {
	// Empty queries and obscure titles legitimately return nothing; a
	// generous threshold keeps no-result streaks from tripping the breaker.
	cfg := resilience.BreakerConfig{Threshold: 10}
	group := resilience.NewFailover(primary.Name(), primary, cfg)
	for _, s := range fallbacks {
		group.Add(s.Name(), s)
	}
	return &Resolver{sources: group}
}

// Search returns up to limit records for query from the first source that
// answers with results. Lookup failure is never fatal to callers: when every
// source fails the error is logged and an empty slice is returned.
func (r *Resolver) Search(ctx context.Context, query string, limit int) []ExternalRecord {
	records, err := resilience.DoWithResult(r.sources, func(s Source) ([]ExternalRecord, error) {
		recs, err := s.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, errNoResults
		}
		return recs, nil
	})
	if err != nil {
		if errors.Is(err, errNoResults) {
			slog.Debug("no metadata found", "query", query)
		} else {
			slog.Error("all metadata sources failed", "query", query, "error", err)
		}
		return nil
	}
	return records
}

// Resolve returns the single best record for query, or nil when nothing
// matched. It is the per-title lookup used when building taste profiles.
func (r *Resolver) Resolve(ctx context.Context, query string) *ExternalRecord {
	records := r.Search(ctx, query, 1)
	if len(records) == 0 {
		return nil
	}
	return &records[0]
}
