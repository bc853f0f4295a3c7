package storage

import (
	"context"
	"errors"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	"github.com/beaconhq/beacon-collector/internal/destinations"
)

// ErrUnknownSite is returned when a public site id does not resolve to an
// active tenant site. It is the only hard failure in the tracking pipeline.
var ErrUnknownSite = errors.New("unknown or inactive site")

// Site is the resolved tenant site plus the destination configuration owned
// by site/agency CRUD. Read-only to this core.
type Site struct {
	ID           string // internal UUID
	PublicID     string // script id embedded in the collector snippet
	AgencyID     string
	IsConnected  bool
	Destinations destinations.Config
	Agency       *destinations.AgencyConfig
}

// SiteStore resolves public site ids and tracks first-event connectivity.
type SiteStore interface {
	// ResolveSite maps a public site id to the active site, or ErrUnknownSite.
	ResolveSite(ctx context.Context, publicID string) (*Site, error)

	// MarkConnected flips the site's "first event received" flag.
	// Idempotent; setting it twice is harmless.
	MarkConnected(ctx context.Context, siteID string) error
}

// EventStore persists canonical events. Batch writes are atomic: either
// every event in the slice is stored or none is.
type EventStore interface {
	// WriteEvent persists one event and returns its id. The event's Seq and
	// first-touch fields are populated from the database.
	WriteEvent(ctx context.Context, evt *v1.Event) (string, error)

	// WriteEvents persists a batch in a single transaction.
	WriteEvents(ctx context.Context, events []*v1.Event) ([]string, error)

	// EventsBySession fetches a session's events, newest first.
	EventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]*v1.Event, error)
}
