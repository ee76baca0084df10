// Package geo resolves the user's position and computes great-circle
// distances from it.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chorisonobeer/Sado-Matsuri-CalendarMap/pkg/models"
)

// ErrLocationUnavailable covers denial, timeout and missing location support.
var ErrLocationUnavailable = errors.New("location unavailable")

const (
	DefaultCacheDuration = time.Hour
	DefaultTimeout       = 10 * time.Second
)

// Locator queries the device location. It may block on a permission prompt.
type Locator interface {
	Locate(ctx context.Context) (models.Coordinate, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (models.Coordinate, error)

func (f LocatorFunc) Locate(ctx context.Context) (models.Coordinate, error) { return f(ctx) }

// Provider caches the last resolved position for a freshness window.
type Provider struct {
	mu      sync.Mutex
	locator Locator
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	last    *models.Position
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithCacheDuration sets how long a resolved position is reused.
func WithCacheDuration(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.ttl = d
		}
	}
}

// WithTimeout bounds a single Locate call.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// NewProvider returns a provider backed by l. A nil locator means only shared
// locations can ever be resolved.
func NewProvider(l Locator, opts ...ProviderOption) *Provider {
	p := &Provider{
		locator: l,
		ttl:     DefaultCacheDuration,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Share records an externally supplied location. It wins over the cached
// value and becomes the new cached value.
func (p *Provider) Share(c models.Coordinate) (models.Position, error) {
	if !ValidPoint(c) {
		return models.Position{}, fmt.Errorf("%w: shared location out of range", ErrLocationUnavailable)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := models.Position{Coordinate: c, ResolvedAt: p.now()}
	p.last = &pos
	return pos, nil
}

// Resolve returns the cached position while it is fresh, otherwise asks the
// locator. Callers treat ErrLocationUnavailable as "no distance".
func (p *Provider) Resolve(ctx context.Context) (models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last != nil && p.now().Sub(p.last.ResolvedAt) < p.ttl {
		return *p.last, nil
	}
	if p.locator == nil {
		return models.Position{}, ErrLocationUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	c, err := p.locator.Locate(ctx)
	if err != nil {
		return models.Position{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	if !ValidPoint(c) {
		return models.Position{}, fmt.Errorf("%w: locator returned %v", ErrLocationUnavailable, c)
	}

	pos := models.Position{Coordinate: c, ResolvedAt: p.now()}
	p.last = &pos
	return pos, nil
}

// Forget drops the cached position.
func (p *Provider) Forget() {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
}

// ValidPoint rejects NaN, infinities and out-of-range degrees.
func ValidPoint(c models.Coordinate) bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return math.Abs(c.Latitude) <= 90 && math.Abs(c.Longitude) <= 180
}
