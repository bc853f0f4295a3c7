package v1

import (
	"encoding/json"
	"strconv"
	"time"
)

// Millis is a milliseconds-since-epoch timestamp that accepts a JSON number,
// a numeric string, or an ISO-8601 string on the wire. Unparsable values decode to zero;
// the normalizer substitutes the server receipt time for zero timestamps.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	*m = 0
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*m = Millis(ts.UnixMilli())
			return nil
		}
		// JS clients commonly serialize Date.now() as a string.
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*m = Millis(int64(f))
		}
		return nil
	}

	if f, err := strconv.ParseFloat(string(b), 64); err == nil {
		*m = Millis(int64(f))
	}
	return nil
}

// TrackRequest is the inbound event contract from the browser collector.
// Identity and attribution fields may arrive either as typed top-level keys
// or inside the free-form Properties bag; top-level always wins.
type TrackRequest struct {
	Event   string `json:"event"`
	SiteID  string `json:"siteId"`
	EventID string `json:"eventId"`

	ClientID  string `json:"clientId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`

	// Hashed PII for enhanced matching. Passed through to destinations,
	// never hashed or unhashed server-side.
	EmailHash     string `json:"emailHash"`
	PhoneHash     string `json:"phoneHash"`
	FirstNameHash string `json:"firstNameHash"`
	LastNameHash  string `json:"lastNameHash"`

	Timestamp     Millis `json:"timestamp"`
	ScriptVersion string `json:"scriptVersion"`

	Properties map[string]interface{} `json:"properties"`
	Ecommerce  map[string]interface{} `json:"ecommerce"`
	Lead       map[string]interface{} `json:"lead"`
}

// BatchRequest wraps multiple events sharing one request's IP and user agent.
type BatchRequest struct {
	Events []TrackRequest `json:"events"`
}

// ValidationError reports a missing required request field. Handlers detect
// it with errors.As through whatever context batch normalization wraps around.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required"
}

// Validate ensures the request carries the minimum routable fields.
func (r *TrackRequest) Validate() error {
	if r.Event == "" {
		return &ValidationError{Field: "event"}
	}
	if r.SiteID == "" {
		return &ValidationError{Field: "siteId"}
	}
	return nil
}

// Event is the canonical event record: one normalized representation of a
// tracked user action, immutable once written. Enrichment, user-agent, and
// attribution data are denormalized onto it at normalization time.
type Event struct {
	// Identity
	ID        string `json:"event_id"`
	SiteID    string `json:"site_id"` // resolved site UUID, not the public script id
	Name      string `json:"event_name"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id"`

	// Temporal. ReceivedAt is the server clock and the ordering source of truth.
	Timestamp  int64     `json:"event_timestamp"` // client-reported, epoch ms
	ReceivedAt time.Time `json:"received_at"`

	// Seq is the monotonic insert sequence assigned by the database.
	Seq int64 `json:"-"`

	ScriptVersion string `json:"script_version,omitempty"`

	// Hashed PII
	EmailHash     string `json:"email_hash,omitempty"`
	PhoneHash     string `json:"phone_hash,omitempty"`
	FirstNameHash string `json:"first_name_hash,omitempty"`
	LastNameHash  string `json:"last_name_hash,omitempty"`

	// Device & browser
	UserAgent        string `json:"user_agent,omitempty"`
	DeviceCategory   string `json:"device_category,omitempty"`
	Browser          string `json:"browser,omitempty"`
	BrowserVersion   string `json:"browser_version,omitempty"`
	OperatingSystem  string `json:"operating_system,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	ViewportSize     string `json:"viewport_size,omitempty"`
	Language         string `json:"language,omitempty"`
	Timezone         string `json:"timezone,omitempty"`

	// Network & enrichment
	IPAddress        string  `json:"ip_address,omitempty"`
	IPCity           string  `json:"ip_city,omitempty"`
	IPRegion         string  `json:"ip_region,omitempty"`
	IPCountry        string  `json:"ip_country,omitempty"`
	IPPostalCode     string  `json:"ip_postal_code,omitempty"`
	IPLatitude       float64 `json:"ip_latitude,omitempty"`
	IPLongitude      float64 `json:"ip_longitude,omitempty"`
	IPTimezone       string  `json:"ip_timezone,omitempty"`
	IPOrganization   string  `json:"ip_organization,omitempty"`
	IPASN            string  `json:"ip_asn,omitempty"`
	IPASNName        string  `json:"ip_asn_name,omitempty"`
	IPASNDomain      string  `json:"ip_asn_domain,omitempty"`
	IPCompanyName    string  `json:"ip_company_name,omitempty"`
	IPCompanyDomain  string  `json:"ip_company_domain,omitempty"`
	IPConnectionType string  `json:"ip_connection_type,omitempty"`
	IPIsVPN          bool    `json:"ip_is_vpn"`
	IPIsProxy        bool    `json:"ip_is_proxy"`
	IPIsTor          bool    `json:"ip_is_tor"`
	IPIsHosting      bool    `json:"ip_is_hosting"`
	VisitorType      string  `json:"visitor_type,omitempty"`

	// Page & referral
	PageURL          string `json:"page_url,omitempty"`
	PagePath         string `json:"page_path,omitempty"`
	PageTitle        string `json:"page_title,omitempty"`
	PageHostname     string `json:"page_hostname,omitempty"`
	PageReferrer     string `json:"page_referrer,omitempty"`
	ReferrerHostname string `json:"referrer_hostname,omitempty"`

	// Last-touch attribution: the marketing source present on this event.
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
	FBCLID      string `json:"fbclid,omitempty"`
	TTCLID      string `json:"ttclid,omitempty"`

	// First-touch attribution: captured once per client and never overwritten.
	// The store writer pins these server-side on the client's first event.
	FirstUTMSource   string `json:"first_utm_source,omitempty"`
	FirstUTMMedium   string `json:"first_utm_medium,omitempty"`
	FirstUTMCampaign string `json:"first_utm_campaign,omitempty"`
	FirstUTMTerm     string `json:"first_utm_term,omitempty"`
	FirstUTMContent  string `json:"first_utm_content,omitempty"`
	FirstReferrer    string `json:"first_referrer,omitempty"`

	// Engagement & session sequencing (maintained client-side, validated here)
	EngagementTimeMs   int64 `json:"engagement_time_msec,omitempty"`
	ScrollDepthPercent int   `json:"scroll_depth_percent,omitempty"`
	IsFirstVisit       bool  `json:"is_first_visit"`
	SessionNumber      int   `json:"session_number,omitempty"`
	PageViewNumber     int   `json:"page_view_number,omitempty"`

	// Free-form payloads
	Properties map[string]interface{} `json:"properties,omitempty"`
	Ecommerce  map[string]interface{} `json:"ecommerce_data,omitempty"`
	Lead       map[string]interface{} `json:"lead_data,omitempty"`
}
