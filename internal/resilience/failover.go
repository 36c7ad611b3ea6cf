package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every source in a [Failover] group fails or
// is being skipped by its breaker.
var ErrExhausted = errors.New("all sources failed")

// sourceEntry pairs a source value with its dedicated breaker.
type sourceEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Failover holds an ordered list of interchangeable sources, each guarded by
// its own [Breaker]. Calls run against the first healthy source; failures
// advance to the next.
//
// Failover is safe for concurrent use once assembly (Add calls) is complete.
type Failover[T any] struct {
	entries []sourceEntry[T]
	cfg     BreakerConfig
}

// NewFailover creates a group with primary as the first source. cfg seeds the
// per-source breakers; cfg.Name is overridden per source.
func NewFailover[T any](primaryName string, primary T, cfg BreakerConfig) *Failover[T] {
	g := &Failover[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback source. Sources are tried in registration order.
func (g *Failover[T]) Add(name string, source T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, sourceEntry[T]{
		name:    name,
		value:   source,
		breaker: NewBreaker(cfg),
	})
}

// Do tries fn against each source in order until one succeeds. Sources with
// open breakers are skipped. Returns [ErrExhausted] wrapping the last error
// when every source fails.
func (g *Failover[T]) Do(fn func(source T) error) error {
	var lastErr error
	for i := range g.entries {
		entry := &g.entries[i]
		err := entry.breaker.Do(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping source, breaker open", "source", entry.name)
		} else {
			slog.Warn("source failed, trying next", "source", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// DoWithResult tries fn against each source until one succeeds and returns
// that source's result. A package-level function because Go methods cannot
// introduce type parameters.
func DoWithResult[T, R any](g *Failover[T], fn func(source T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		entry := &g.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping source, breaker open", "source", entry.name)
		} else {
			slog.Warn("source failed, trying next", "source", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
