package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	"github.com/beaconhq/beacon-collector/internal/destinations"
	"github.com/beaconhq/beacon-collector/internal/scoring"
	"github.com/beaconhq/beacon-collector/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDispatchTimeout = 10 * time.Second

	// Batch normalization runs enrichment lookups concurrently; this bounds
	// the fan-out per request.
	batchNormalizeConcurrency = 8
)

// Service orchestrates the tracking pipeline: normalize, persist, then
// fan out to destinations and scoring. Persistence is the synchronous
// contract; fan-out and scoring run detached and never affect the response.
type Service struct {
	normalizer       *Normalizer
	events           storage.EventStore
	sites            storage.SiteStore
	router           *destinations.Router
	engine           *scoring.Engine
	maxBodySizeBytes int
	dispatchTimeout  time.Duration
}

func NewService(normalizer *Normalizer, events storage.EventStore, sites storage.SiteStore, router *destinations.Router, engine *scoring.Engine, maxBodySizeMB int) *Service {
	if normalizer == nil {
		panic("tracking: normalizer must not be nil")
	}
	if events == nil {
		panic("tracking: event store must not be nil")
	}
	if sites == nil {
		panic("tracking: site store must not be nil")
	}
	if router == nil {
		panic("tracking: router must not be nil")
	}
	if engine == nil {
		panic("tracking: scoring engine must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	return &Service{
		normalizer:       normalizer,
		events:           events,
		sites:            sites,
		router:           router,
		engine:           engine,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		dispatchTimeout:  defaultDispatchTimeout,
	}
}

// Track processes one event end to end and returns its id. The event is
// durable when this returns; destination delivery and scoring continue in
// the background.
func (s *Service) Track(ctx context.Context, req *v1.TrackRequest, meta RequestMeta) (string, error) {
	evt, site, err := s.normalizer.Normalize(ctx, req, meta, time.Now().UTC())
	if err != nil {
		return "", err
	}

	if _, err := s.events.WriteEvent(ctx, evt); err != nil {
		return "", err
	}

	s.markConnected(ctx, site)
	go s.dispatch(evt, site)

	return evt.ID, nil
}

// TrackBatch processes a batch sharing one request's transport metadata.
// Persistence is all-or-nothing: any normalization or write failure rejects
// the whole batch and nothing is stored.
func (s *Service) TrackBatch(ctx context.Context, reqs []v1.TrackRequest, meta RequestMeta) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	events := make([]*v1.Event, len(reqs))
	sites := make([]*storage.Site, len(reqs))
	receivedAt := time.Now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchNormalizeConcurrency)
	for i := range reqs {
		g.Go(func() error {
			evt, site, err := s.normalizer.Normalize(gctx, &reqs[i], meta, receivedAt)
			if err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			events[i] = evt
			sites[i] = site
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids, err := s.events.WriteEvents(ctx, events)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, 1)
	for i, evt := range events {
		if !seen[sites[i].ID] {
			seen[sites[i].ID] = true
			s.markConnected(ctx, sites[i])
		}
		go s.dispatch(evt, sites[i])
	}

	return ids, nil
}

// SessionEvents fetches a session's stored events, newest first.
func (s *Service) SessionEvents(ctx context.Context, sessionID string, limit, offset int) ([]*v1.Event, error) {
	return s.events.EventsBySession(ctx, sessionID, limit, offset)
}

// markConnected flips the site's first-event flag. Best effort: a failure is
// logged and never surfaces, the next event retries it.
func (s *Service) markConnected(ctx context.Context, site *storage.Site) {
	if site.IsConnected {
		return
	}
	if err := s.sites.MarkConnected(ctx, site.ID); err != nil {
		slog.Warn("[Tracking] Failed to mark site connected", "site_id", site.ID, "error", err)
	}
}

// dispatch runs destination fan-out and scoring for one stored event. It is
// detached from the request: its own timeout, its own context, errors logged
// and absorbed.
func (s *Service) dispatch(evt *v1.Event, site *storage.Site) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[Tracking] Dispatch panic recovered", "event_id", evt.ID, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	defer cancel()

	s.router.Route(ctx, evt, site.Destinations, site.Agency)

	if err := s.engine.Score(ctx, evt.SiteID, evt.ClientID, evt.SessionID, evt.Name, evt.ID); err != nil {
		slog.Warn("[Tracking] Scoring failed", "event_id", evt.ID, "error", err)
	}
}
