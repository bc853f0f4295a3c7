// Package destinations fans canonical events out to configured third-party
// advertising/analytics platforms. Each destination is an independent
// implementation behind one capability interface; one destination's failure
// never prevents delivery attempts to the others.
package destinations

import (
	"context"
	"errors"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
)

// ErrNoCredential is the typed outcome of the two-level credential lookup
// when neither the site nor the agency supplies a usable credential.
var ErrNoCredential = errors.New("no credential available")

// Config is the per-site destination configuration, read-only to this core.
// It lives under the "destinations" key of the site's config document.
type Config struct {
	GA4       *GA4Config       `json:"ga4,omitempty"`
	Meta      *MetaConfig      `json:"meta,omitempty"`
	GoogleAds *GoogleAdsConfig `json:"googleAds,omitempty"`
}

// AgencyConfig is the agency-level fallback configuration. Currently only
// Meta supports an agency credential (system-user token).
type AgencyConfig struct {
	Meta *AgencyMetaConfig `json:"meta,omitempty"`
}

type AgencyMetaConfig struct {
	SystemUserToken string `json:"systemUserToken"`
}

// Settings is the routing slice every destination shares: the enabled flag
// and the event-name allow-list ("*" matches all).
type Settings struct {
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events"`
}

type GA4Config struct {
	Settings
	MeasurementID string `json:"measurementId"`
	APISecret     string `json:"apiSecret"`
}

type MetaConfig struct {
	Settings
	PixelID     string `json:"pixelId"`
	AccessToken string `json:"accessToken"`
}

type GoogleAdsConfig struct {
	Settings
	CustomerID       string `json:"customerId"`
	ConversionAction string `json:"conversionAction"`
	AccessToken      string `json:"accessToken"`
	DeveloperToken   string `json:"developerToken"`
	CurrencyCode     string `json:"currencyCode"`
}

// Destination is one forwarding target. Settings extracts the destination's
// slice of the site config (nil when unconfigured); Send translates the
// canonical event to the platform wire shape and delivers it.
type Destination interface {
	Name() string
	Settings(site Config) *Settings
	Send(ctx context.Context, evt *v1.Event, site Config, agency *AgencyConfig) error
}

// SkipError marks a delivery that does not apply to this event (for example
// a conversion upload without a click id). The router records it as skipped,
// not failed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// eventAllowed checks the allow-list. An empty list or a "*" entry matches
// every event name.
func eventAllowed(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == name {
			return true
		}
	}
	return false
}
