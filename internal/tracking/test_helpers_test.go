package tracking

import (
	"context"
	"sync"
	"time"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	"github.com/beaconhq/beacon-collector/internal/destinations"
	"github.com/beaconhq/beacon-collector/internal/enrichment"
	"github.com/beaconhq/beacon-collector/internal/scoring"
	"github.com/beaconhq/beacon-collector/internal/storage"
)

// fakeSiteStore resolves a fixed set of public site ids.
type fakeSiteStore struct {
	mu        sync.Mutex
	sites     map[string]*storage.Site // keyed by public id
	connected []string
}

func newFakeSiteStore(sites ...*storage.Site) *fakeSiteStore {
	f := &fakeSiteStore{sites: make(map[string]*storage.Site)}
	for _, s := range sites {
		f.sites[s.PublicID] = s
	}
	return f
}

func (f *fakeSiteStore) ResolveSite(_ context.Context, publicID string) (*storage.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	site, ok := f.sites[publicID]
	if !ok {
		return nil, storage.ErrUnknownSite
	}
	c := *site
	return &c, nil
}

func (f *fakeSiteStore) MarkConnected(_ context.Context, siteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, siteID)
	for _, s := range f.sites {
		if s.ID == siteID {
			s.IsConnected = true
		}
	}
	return nil
}

// fakeEventStore appends writes in memory. writeErr makes every write fail.
type fakeEventStore struct {
	mu       sync.Mutex
	events   []*v1.Event
	writeErr error
}

func (f *fakeEventStore) WriteEvent(_ context.Context, evt *v1.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.events = append(f.events, evt)
	return evt.ID, nil
}

func (f *fakeEventStore) WriteEvents(_ context.Context, events []*v1.Event) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	ids := make([]string, 0, len(events))
	for _, evt := range events {
		f.events = append(f.events, evt)
		ids = append(ids, evt.ID)
	}
	return ids, nil
}

func (f *fakeEventStore) EventsBySession(_ context.Context, sessionID string, limit, offset int) ([]*v1.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*v1.Event
	for _, evt := range f.events {
		if evt.SessionID == sessionID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeEventStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeEnricher returns a canned result without any lookup.
type fakeEnricher struct {
	result *enrichment.Result
}

func (f *fakeEnricher) Enrich(_ context.Context, ip string) *enrichment.Result {
	if f.result == nil {
		return enrichment.UnknownResult(ip)
	}
	out := *f.result
	out.IP = ip
	return &out
}

// nopScoringStore satisfies scoring.Store with no active rules, so scoring is
// a no-op in pipeline tests.
type nopScoringStore struct{}

func (nopScoringStore) ActiveRuleValue(context.Context, string, string) (int, error) {
	return 0, nil
}

func (nopScoringStore) ApplyScore(context.Context, string, string, string, string, string, int) (*scoring.VisitorScore, error) {
	return &scoring.VisitorScore{}, nil
}

func (nopScoringStore) UpsertRule(context.Context, *scoring.Rule) (*scoring.Rule, error) {
	return nil, nil
}

func (nopScoringStore) ListRules(context.Context, string) ([]*scoring.Rule, error) {
	return nil, nil
}

func (nopScoringStore) DeleteRule(context.Context, string, string) (bool, error) {
	return false, nil
}

func (nopScoringStore) VisitorScore(context.Context, string, string) (*scoring.VisitorScore, error) {
	return nil, nil
}

func (nopScoringStore) ScoreHistory(context.Context, string, string, int) ([]*scoring.HistoryEntry, error) {
	return nil, nil
}

func (nopScoringStore) TopVisitors(context.Context, string, int) ([]*scoring.VisitorScore, error) {
	return nil, nil
}

func testSite() *storage.Site {
	return &storage.Site{
		ID:       "11111111-1111-1111-1111-111111111111",
		PublicID: "pub-site-1",
	}
}

func newTestService(sites *fakeSiteStore, events *fakeEventStore) *Service {
	normalizer := NewNormalizer(sites, &fakeEnricher{}, 0)
	router := destinations.NewRouterWith(time.Second)
	engine := scoring.NewEngine(nopScoringStore{})
	return NewService(normalizer, events, sites, router, engine, 1)
}
