package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubProvider counts lookups and returns a canned result or error.
type stubProvider struct {
	result *Result
	err    error
	calls  int
}

func (p *stubProvider) Lookup(_ context.Context, ip string) (*Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := *p.result
	out.IP = ip
	return &out, nil
}

// recordingCache wraps MemoryCache to capture the TTL passed on Set.
type recordingCache struct {
	*MemoryCache
	lastTTL time.Duration
	sets    int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{MemoryCache: NewMemoryCache()}
}

func (c *recordingCache) Set(ctx context.Context, ip string, r *Result, ttl time.Duration) {
	c.sets++
	c.lastTTL = ttl
	c.MemoryCache.Set(ctx, ip, r, ttl)
}

func TestEnrich_EmptyIP(t *testing.T) {
	provider := &stubProvider{result: &Result{}}
	svc := NewService(provider, newRecordingCache(), 0, nil)

	r := svc.Enrich(context.Background(), "")
	require.Equal(t, VisitorUnknown, r.VisitorType)
	require.Zero(t, provider.calls)
}

func TestEnrich_ClassifiesAndCaches(t *testing.T) {
	provider := &stubProvider{result: &Result{
		City:          "Mountain View",
		CompanyName:   "Acme Corp",
		CompanyDomain: "acme.com",
	}}
	cache := newRecordingCache()
	svc := NewService(provider, cache, 0, nil)

	r := svc.Enrich(context.Background(), "203.0.113.10")
	require.Equal(t, VisitorBusiness, r.VisitorType)
	require.Equal(t, "203.0.113.10", r.IP)
	require.Equal(t, 7*24*time.Hour, cache.lastTTL)

	// Second call is served from the cache; the provider is not consulted.
	again := svc.Enrich(context.Background(), "203.0.113.10")
	require.Equal(t, r, again)
	require.Equal(t, 1, provider.calls)
}

func TestEnrich_ProviderFailureNotCached(t *testing.T) {
	provider := &stubProvider{err: errors.New("upstream unavailable")}
	cache := newRecordingCache()
	svc := NewService(provider, cache, 0, nil)

	r := svc.Enrich(context.Background(), "203.0.113.10")
	require.Equal(t, VisitorUnknown, r.VisitorType)
	require.Zero(t, cache.sets)

	// The degraded result was not cached, so the next event retries.
	svc.Enrich(context.Background(), "203.0.113.10")
	require.Equal(t, 2, provider.calls)
}

func TestEnrich_HostingClassifiedAsBot(t *testing.T) {
	provider := &stubProvider{result: &Result{
		Organization: "Google LLC",
		IsHosting:    true,
	}}
	cache := newRecordingCache()
	svc := NewService(provider, cache, 0, nil)

	r := svc.Enrich(context.Background(), "8.8.8.8")
	require.Equal(t, VisitorBot, r.VisitorType)
	// Bot shares the unknown cache lifetime.
	require.Equal(t, 3*24*time.Hour, cache.lastTTL)
}

func TestTTLFor(t *testing.T) {
	require.Equal(t, 7*24*time.Hour, TTLFor(VisitorBusiness))
	require.Equal(t, 24*time.Hour, TTLFor(VisitorConsumer))
	require.Equal(t, 6*time.Hour, TTLFor(VisitorVPN))
	require.Equal(t, 3*24*time.Hour, TTLFor(VisitorBot))
	require.Equal(t, 3*24*time.Hour, TTLFor(VisitorUnknown))
}
