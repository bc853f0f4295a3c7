package enrichment

import (
	"context"
	"log/slog"
	"time"
)

// Cache lifetime by classification. Business and consumer IP-to-org bindings
// are stable; VPN exit nodes rotate fast; unknown results are retried
// moderately often in case the provider was transiently unavailable.
// Bot shares the unknown lifetime.
const (
	ttlBusiness = 7 * 24 * time.Hour
	ttlConsumer = 24 * time.Hour
	ttlVPN      = 6 * time.Hour
	ttlUnknown  = 3 * 24 * time.Hour

	defaultLookupTimeout = 3 * time.Second
)

// Service is the classification-aware enrichment cache: it wraps a Provider
// behind a Cache whose entry TTL depends on the derived visitor type.
type Service struct {
	provider     Provider
	cache        Cache
	timeout      time.Duration
	consumerISPs []string
}

func NewService(provider Provider, cache Cache, timeout time.Duration, consumerISPs []string) *Service {
	if timeout <= 0 || timeout > defaultLookupTimeout {
		timeout = defaultLookupTimeout
	}
	if len(consumerISPs) == 0 {
		consumerISPs = defaultConsumerISPs
	}
	return &Service{
		provider:     provider,
		cache:        cache,
		timeout:      timeout,
		consumerISPs: consumerISPs,
	}
}

// Enrich resolves an IP to geographic and organizational metadata. It never
// fails: on a provider error or timeout it returns the unknown default
// without caching it, so the next event for this IP retries the lookup.
func (s *Service) Enrich(ctx context.Context, ip string) *Result {
	if ip == "" {
		return UnknownResult(ip)
	}

	if cached, ok := s.cache.Get(ctx, ip); ok {
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r, err := s.provider.Lookup(lookupCtx, ip)
	if err != nil {
		slog.Warn("[Enrichment] Lookup degraded to unknown", "ip", ip, "error", err)
		return UnknownResult(ip)
	}

	r.VisitorType = Classify(r, s.consumerISPs)
	s.cache.Set(ctx, ip, r, TTLFor(r.VisitorType))

	return r
}

// TTLFor returns the cache lifetime for a classification.
func TTLFor(t VisitorType) time.Duration {
	switch t {
	case VisitorBusiness:
		return ttlBusiness
	case VisitorConsumer:
		return ttlConsumer
	case VisitorVPN:
		return ttlVPN
	default:
		return ttlUnknown
	}
}
