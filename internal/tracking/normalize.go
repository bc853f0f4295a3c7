package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	"github.com/beaconhq/beacon-collector/internal/enrichment"
	"github.com/beaconhq/beacon-collector/internal/identity"
	"github.com/beaconhq/beacon-collector/internal/storage"
	"github.com/google/uuid"
)

const defaultMaxPropertyBytes = 16 * 1024

// RequestMeta carries the transport-level facts shared by every event in one
// HTTP request: the caller's IP and user agent.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// Enricher resolves an IP to geographic and organizational metadata. It never
// fails; degraded lookups return the unknown default.
type Enricher interface {
	Enrich(ctx context.Context, ip string) *enrichment.Result
}

// Normalizer converts inbound track requests into canonical events: site
// resolution, identity and attribution resolution, user-agent parsing, and IP
// enrichment all happen here, exactly once per event.
type Normalizer struct {
	sites            storage.SiteStore
	enricher         Enricher
	maxPropertyBytes int
}

func NewNormalizer(sites storage.SiteStore, enricher Enricher, maxPropertyBytes int) *Normalizer {
	if sites == nil {
		panic("tracking: site store must not be nil")
	}
	if enricher == nil {
		panic("tracking: enricher must not be nil")
	}
	if maxPropertyBytes <= 0 {
		maxPropertyBytes = defaultMaxPropertyBytes
	}
	return &Normalizer{
		sites:            sites,
		enricher:         enricher,
		maxPropertyBytes: maxPropertyBytes,
	}
}

// Normalize builds the canonical event for one track request. The only hard
// failure is an unknown site (storage.ErrUnknownSite); everything else
// degrades to zero values so a malformed field never loses an event.
func (n *Normalizer) Normalize(ctx context.Context, req *v1.TrackRequest, meta RequestMeta, receivedAt time.Time) (*v1.Event, *storage.Site, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	site, err := n.sites.ResolveSite(ctx, req.SiteID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve site %q: %w", req.SiteID, err)
	}

	id, last, first := identity.Resolve(req)
	device := parseUserAgent(meta.UserAgent)

	evt := &v1.Event{
		ID:         req.EventID,
		SiteID:     site.ID,
		Name:       req.Event,
		ClientID:   id.ClientID,
		UserID:     id.UserID,
		SessionID:  id.SessionID,
		Timestamp:  int64(req.Timestamp),
		ReceivedAt: receivedAt,

		ScriptVersion: req.ScriptVersion,

		EmailHash:     req.EmailHash,
		PhoneHash:     req.PhoneHash,
		FirstNameHash: req.FirstNameHash,
		LastNameHash:  req.LastNameHash,

		UserAgent:       meta.UserAgent,
		DeviceCategory:  device.Category,
		Browser:         device.Browser,
		BrowserVersion:  device.BrowserVersion,
		OperatingSystem: device.OperatingSystem,

		IsFirstVisit:   id.IsFirstVisit,
		SessionNumber:  id.SessionNumber,
		PageViewNumber: id.PageViewNumber,
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	// A zero timestamp means the client clock was absent or unparsable; the
	// server receipt time stands in for it.
	if evt.Timestamp == 0 {
		evt.Timestamp = receivedAt.UnixMilli()
	}

	n.applyPageFields(evt, req.Properties)
	applyTouches(evt, last, first)
	n.applyEnrichment(ctx, evt, meta.ClientIP)

	evt.Properties = n.boundedBag(evt, "properties", req.Properties)
	evt.Ecommerce = n.boundedBag(evt, "ecommerce", req.Ecommerce)
	evt.Lead = n.boundedBag(evt, "lead", req.Lead)

	return evt, site, nil
}

// applyPageFields lifts the well-known page and client-environment keys out
// of the property bag onto typed columns. The bag itself is stored untouched.
func (n *Normalizer) applyPageFields(evt *v1.Event, props map[string]interface{}) {
	get := func(key string) string {
		if v, ok := props[key].(string); ok {
			return v
		}
		return ""
	}

	evt.PageURL = get("page_url")
	evt.PagePath = get("page_path")
	evt.PageTitle = get("page_title")
	evt.PageHostname = get("page_hostname")
	evt.ScreenResolution = get("screen_resolution")
	evt.ViewportSize = get("viewport_size")
	evt.Language = get("language")
	evt.Timezone = get("timezone")

	switch v := props["engagement_time_msec"].(type) {
	case float64:
		evt.EngagementTimeMs = int64(v)
	case int:
		evt.EngagementTimeMs = int64(v)
	}
	switch v := props["scroll_depth_percent"].(type) {
	case float64:
		evt.ScrollDepthPercent = int(v)
	case int:
		evt.ScrollDepthPercent = v
	}
}

func applyTouches(evt *v1.Event, last, first identity.Touch) {
	evt.UTMSource = last.UTMSource
	evt.UTMMedium = last.UTMMedium
	evt.UTMCampaign = last.UTMCampaign
	evt.UTMTerm = last.UTMTerm
	evt.UTMContent = last.UTMContent
	evt.GCLID = last.GCLID
	evt.FBCLID = last.FBCLID
	evt.TTCLID = last.TTCLID
	evt.PageReferrer = last.Referrer
	evt.ReferrerHostname = last.ReferrerHostname

	// Client-replayed first touch. The store writer pins the authoritative
	// copy server-side on write.
	evt.FirstUTMSource = first.UTMSource
	evt.FirstUTMMedium = first.UTMMedium
	evt.FirstUTMCampaign = first.UTMCampaign
	evt.FirstUTMTerm = first.UTMTerm
	evt.FirstUTMContent = first.UTMContent
	evt.FirstReferrer = first.Referrer
}

func (n *Normalizer) applyEnrichment(ctx context.Context, evt *v1.Event, ip string) {
	r := n.enricher.Enrich(ctx, ip)

	evt.IPAddress = r.IP
	evt.IPCity = r.City
	evt.IPRegion = r.Region
	evt.IPCountry = r.Country
	evt.IPPostalCode = r.PostalCode
	evt.IPLatitude = r.Latitude
	evt.IPLongitude = r.Longitude
	evt.IPTimezone = r.Timezone
	evt.IPOrganization = r.Organization
	evt.IPASN = r.ASN
	evt.IPASNName = r.ASNName
	evt.IPASNDomain = r.ASNDomain
	evt.IPCompanyName = r.CompanyName
	evt.IPCompanyDomain = r.CompanyDomain
	evt.IPConnectionType = r.ConnectionType
	evt.IPIsVPN = r.IsVPN
	evt.IPIsProxy = r.IsProxy
	evt.IPIsTor = r.IsTor
	evt.IPIsHosting = r.IsHosting
	evt.VisitorType = string(r.VisitorType)
}

// boundedBag enforces the per-bag payload limit. An oversize bag is dropped
// with a warning; the event itself is still stored with its typed fields.
func (n *Normalizer) boundedBag(evt *v1.Event, name string, bag map[string]interface{}) map[string]interface{} {
	if len(bag) == 0 {
		return nil
	}
	raw, err := json.Marshal(bag)
	if err != nil {
		slog.Warn("[Tracking] Unencodable payload bag dropped",
			"bag", name, "event_id", evt.ID, "error", err)
		return nil
	}
	if len(raw) > n.maxPropertyBytes {
		slog.Warn("[Tracking] Oversize payload bag dropped",
			"bag", name, "event_id", evt.ID, "size", len(raw), "max", n.maxPropertyBytes)
		return nil
	}
	return bag
}
