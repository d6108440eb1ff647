// Package resolver provides reference revalidation lookups guarded by
// a circuit breaker.
//
// In hosted deployments the entity lookup surface may be a remote
// content API. A flapping host should degrade reference checks fast
// (the transformer turns an unavailable lookup into a dropped
// reference with a warning) instead of stalling every clone on
// timeouts.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/fieldclone/internal/storage"
)

// ErrLookupUnavailable is returned when the circuit breaker is open
// and reference lookups are being rejected to protect the host.
var ErrLookupUnavailable = errors.New("reference lookups unavailable")

// Config holds the circuit breaker configuration.
type Config struct {
	// MaxFailures is the number of consecutive failures required to
	// trip the circuit. Default: 5
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before allowing
	// test requests. Default: 15 seconds
	Timeout time.Duration
}

// Resolver wraps storage.EntityStore existence checks behind a shared
// circuit breaker.
type Resolver struct {
	entities storage.EntityStore
	breaker  *gobreaker.CircuitBreaker
}

// New creates a resolver with default breaker configuration.
func New(entities storage.EntityStore) *Resolver {
	return NewWithConfig(entities, Config{})
}

// NewWithConfig creates a resolver with custom breaker configuration.
func NewWithConfig(entities storage.EntityStore, cfg Config) *Resolver {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "reference-lookups",
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}

	return &Resolver{
		entities: entities,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// AttachmentExists reports whether id resolves to an attachment.
func (r *Resolver) AttachmentExists(ctx context.Context, id int64) (bool, error) {
	return r.execute(func() (bool, error) {
		return r.entities.AttachmentExists(ctx, id)
	})
}

// EntityExists reports whether id resolves to an entity.
func (r *Resolver) EntityExists(ctx context.Context, id int64) (bool, error) {
	return r.execute(func() (bool, error) {
		return r.entities.EntityExists(ctx, id)
	})
}

// TermExists reports whether termID resolves within the taxonomy.
func (r *Resolver) TermExists(ctx context.Context, taxonomy string, termID int64) (bool, error) {
	return r.execute(func() (bool, error) {
		return r.entities.TermExists(ctx, taxonomy, termID)
	})
}

// UserExists reports whether id resolves to a user.
func (r *Resolver) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.execute(func() (bool, error) {
		return r.entities.UserExists(ctx, id)
	})
}

// execute runs one lookup through the breaker. A "not found" result is
// a success from the breaker's point of view; only lookup errors count
// as failures.
func (r *Resolver) execute(lookup func() (bool, error)) (bool, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		return lookup()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, ErrLookupUnavailable
		}
		return false, err
	}
	return result.(bool), nil
}
