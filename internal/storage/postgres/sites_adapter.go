package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beaconhq/beacon-collector/internal/destinations"
	"github.com/beaconhq/beacon-collector/internal/storage"
)

// siteConfigDoc is the site config JSONB document. Only the destinations
// section is read by this core; everything else belongs to the dashboard.
type siteConfigDoc struct {
	Destinations destinations.Config `json:"destinations"`
}

// ResolveSite maps a public script id to the active site, including its
// destination configuration and the agency fallback config.
func (a *Adapter) ResolveSite(ctx context.Context, publicID string) (*storage.Site, error) {
	var (
		site       storage.Site
		siteCfgRaw []byte
		agyCfgRaw  []byte
	)

	err := a.db.QueryRowContext(ctx, queryResolveSite, publicID).Scan(
		&site.ID, &site.PublicID, &site.AgencyID, &site.IsConnected, &siteCfgRaw, &agyCfgRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUnknownSite
	}
	if err != nil {
		return nil, fmt.Errorf("resolve site %q: %w", publicID, err)
	}

	var doc siteConfigDoc
	if len(siteCfgRaw) > 0 {
		if err := json.Unmarshal(siteCfgRaw, &doc); err != nil {
			// A malformed config must not reject events: the site still
			// resolves, it just has no routable destinations.
			slog.Warn("[Postgres] Malformed site config ignored", "site_id", site.ID, "error", err)
		}
	}
	site.Destinations = doc.Destinations

	if len(agyCfgRaw) > 0 {
		var agency destinations.AgencyConfig
		if err := json.Unmarshal(agyCfgRaw, &agency); err != nil {
			slog.Warn("[Postgres] Malformed agency config ignored", "site_id", site.ID, "error", err)
		} else {
			site.Agency = &agency
		}
	}

	return &site, nil
}

// MarkConnected flips the "first event received" flag. The guarded UPDATE
// makes repeated calls no-ops.
func (a *Adapter) MarkConnected(ctx context.Context, siteID string) error {
	if _, err := a.db.ExecContext(ctx, queryMarkConnected, siteID); err != nil {
		return fmt.Errorf("mark site connected: %w", err)
	}
	return nil
}
