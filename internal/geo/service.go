package geo

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/property-scorer/internal/address"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/pkg/geocode"
)

// DefaultLookupTimeout bounds one geocoder call, retries included.
const DefaultLookupTimeout = 10 * time.Second

// CacheEntry is a persisted geocode outcome. Unmatched addresses are cached
// too so they are not looked up again.
type CacheEntry struct {
	AddressHash string    `json:"address_hash"`
	County      string    `json:"county,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lon         *float64  `json:"lon,omitempty"`
	Source      string    `json:"source,omitempty"`
	Matched     bool      `json:"matched"`
	CachedAt    time.Time `json:"cached_at"`
}

// Cache persists geocode outcomes. GetGeocode returns nil, nil on a miss.
type Cache interface {
	GetGeocode(ctx context.Context, hash string) (*CacheEntry, error)
	PutGeocode(ctx context.Context, entry CacheEntry) error
}

// AddressHash is the cache key for an address: sha256 over its compact form.
func AddressHash(addr string) string {
	h := sha256.Sum256([]byte(address.Compact(addr)))
	return fmt.Sprintf("%x", h)
}

// Service resolves counties and distances from the static city table, then
// the cache, then the geocoder. Every failure degrades to "Unknown" or nil.
type Service struct {
	counties CountyTable
	geocoder geocode.Client
	cache    Cache
	timeout  time.Duration
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	now      func() time.Time

	mu     sync.RWMutex
	memo   map[string]*CacheEntry
	flight singleflight.Group
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCountyTable replaces the built-in city table.
func WithCountyTable(t CountyTable) ServiceOption {
	return func(s *Service) { s.counties = t }
}

// WithCache adds a persistent cache below the in-memory one.
func WithCache(c Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithLookupTimeout bounds each geocoder call.
func WithLookupTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetry sets the retry policy for geocoder calls.
func WithRetry(cfg resilience.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// WithBreaker sets the circuit breaker guarding the geocoder.
func WithBreaker(cb *resilience.CircuitBreaker) ServiceOption {
	return func(s *Service) { s.breaker = cb }
}

// NewService builds a Service. A nil geocoder limits it to the city table
// and cached entries.
func NewService(g geocode.Client, opts ...ServiceOption) *Service {
	s := &Service{
		counties: DefaultCountyTable(),
		geocoder: g,
		timeout:  DefaultLookupTimeout,
		retry:    resilience.DefaultRetryConfig(),
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		now:      time.Now,
		memo:     make(map[string]*CacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.OnRetry = resilience.RetryLogger("geocode", "lookup")
	return s
}

// ResolveCounty implements Resolver.
func (s *Service) ResolveCounty(ctx context.Context, addr string) string {
	if addr == "" {
		return unknownCounty
	}
	if c, ok := s.counties.ForAddress(addr); ok {
		return c
	}
	e := s.lookup(ctx, addr)
	if e == nil || !e.Matched || e.County == "" {
		return unknownCounty
	}
	return address.ProperCase(address.StripCountySuffix(e.County))
}

// ResolveDistance implements Resolver.
func (s *Service) ResolveDistance(ctx context.Context, origin Origin, hub Hub) *Distance {
	if origin.HasCoordinates() {
		d := DistanceTo(*origin.Lat, *origin.Lon, hub)
		return &d
	}
	if origin.Address == "" {
		return nil
	}
	e := s.lookup(ctx, origin.Address)
	if e == nil || !e.Matched || e.Lat == nil || e.Lon == nil {
		return nil
	}
	d := DistanceTo(*e.Lat, *e.Lon, hub)
	return &d
}

// Locate returns geocoded coordinates for addr, if any.
func (s *Service) Locate(ctx context.Context, addr string) (lat, lon *float64) {
	if addr == "" {
		return nil, nil
	}
	e := s.lookup(ctx, addr)
	if e == nil || !e.Matched {
		return nil, nil
	}
	return e.Lat, e.Lon
}

// BreakerState reports the geocoder circuit state for health checks.
func (s *Service) BreakerState() resilience.CircuitState {
	return s.breaker.State()
}

func (s *Service) lookup(ctx context.Context, addr string) *CacheEntry {
	key := AddressHash(addr)

	s.mu.RLock()
	e, ok := s.memo[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	v, _, _ := s.flight.Do(key, func() (any, error) {
		if s.cache != nil {
			cached, err := s.cache.GetGeocode(ctx, key)
			if err != nil {
				zap.L().Warn("geo: cache read failed", zap.String("key", key[:12]), zap.Error(err))
			} else if cached != nil {
				s.remember(key, cached)
				return cached, nil
			}
		}

		fresh := s.geocode(ctx, addr, key)
		if fresh == nil {
			return (*CacheEntry)(nil), nil
		}
		s.remember(key, fresh)
		if s.cache != nil {
			if err := s.cache.PutGeocode(ctx, *fresh); err != nil {
				zap.L().Warn("geo: cache write failed", zap.String("key", key[:12]), zap.Error(err))
			}
		}
		return fresh, nil
	})
	return v.(*CacheEntry)
}

func (s *Service) remember(key string, e *CacheEntry) {
	s.mu.Lock()
	s.memo[key] = e
	s.mu.Unlock()
}

// geocode calls the geocoder under timeout, retry and the breaker. A nil
// result means the lookup failed and must not be cached.
func (s *Service) geocode(ctx context.Context, addr, key string) *CacheEntry {
	if s.geocoder == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := resilience.Guard(ctx, s.breaker, s.retry, func(ctx context.Context) (*geocode.Result, error) {
		return s.geocoder.Geocode(ctx, geocode.AddressInput{OneLine: addr})
	})
	if err != nil {
		zap.L().Warn("geo: geocode failed", zap.String("address", addr), zap.Error(err))
		return nil
	}

	e := &CacheEntry{AddressHash: key, Source: res.Source, Matched: res.Matched, CachedAt: s.now().UTC()}
	if res.Matched {
		lat, lon := res.Latitude, res.Longitude
		e.Lat, e.Lon = &lat, &lon
		e.County = address.StripCountySuffix(res.County)
	}
	return e
}
