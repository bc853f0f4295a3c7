// Package identity fills in visitor identity and marketing attribution from
// the inbound payload. Resolution is a pure function: no I/O, no failure,
// missing fields default to their zero values.
package identity

import (
	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
)

// Identity is the visitor/session identity carried by an event. Session and
// page-view sequencing is maintained client-side across calls; the resolver
// trusts the payload and only validates presence.
type Identity struct {
	ClientID       string
	UserID         string
	SessionID      string
	SessionNumber  int
	PageViewNumber int
	IsFirstVisit   bool
}

// Touch is one attribution snapshot: the UTM parameters, click ids, and
// referrer associated with a marketing source.
type Touch struct {
	UTMSource        string
	UTMMedium        string
	UTMCampaign      string
	UTMTerm          string
	UTMContent       string
	GCLID            string
	FBCLID           string
	TTCLID           string
	Referrer         string
	ReferrerHostname string
}

// Empty reports whether the snapshot carries no attribution at all.
func (t Touch) Empty() bool {
	return t == Touch{}
}

// Resolve computes identity plus the last-touch and first-touch attribution
// snapshots. Last touch is whatever this event carries; first touch is the
// copy the client captured on its first visit and replays on every call
// (the store writer pins it server-side as well).
//
// Every field may arrive as a typed top-level key or under the properties
// bag; the top-level value always takes precedence.
func Resolve(req *v1.TrackRequest) (Identity, Touch, Touch) {
	props := req.Properties

	id := Identity{
		ClientID:       pickString(req.ClientID, props, "client_id"),
		UserID:         pickString(req.UserID, props, "user_id"),
		SessionID:      pickString(req.SessionID, props, "session_id"),
		SessionNumber:  pickInt(props, "session_number"),
		PageViewNumber: pickInt(props, "page_view_number"),
		IsFirstVisit:   pickBool(props, "is_first_visit"),
	}

	last := Touch{
		UTMSource:        pickString("", props, "utm_source"),
		UTMMedium:        pickString("", props, "utm_medium"),
		UTMCampaign:      pickString("", props, "utm_campaign"),
		UTMTerm:          pickString("", props, "utm_term"),
		UTMContent:       pickString("", props, "utm_content"),
		GCLID:            pickString("", props, "gclid"),
		FBCLID:           pickString("", props, "fbclid"),
		TTCLID:           pickString("", props, "ttclid"),
		Referrer:         pickString("", props, "page_referrer"),
		ReferrerHostname: pickString("", props, "referrer_hostname"),
	}

	first := Touch{
		UTMSource:   pickString("", props, "first_utm_source"),
		UTMMedium:   pickString("", props, "first_utm_medium"),
		UTMCampaign: pickString("", props, "first_utm_campaign"),
		UTMTerm:     pickString("", props, "first_utm_term"),
		UTMContent:  pickString("", props, "first_utm_content"),
		Referrer:    pickString("", props, "first_referrer"),
	}

	return id, last, first
}

// pickString applies the field-resolution policy: typed top-level field,
// then the same-named property-bag key, then empty.
func pickString(top string, props map[string]interface{}, key string) string {
	if top != "" {
		return top
	}
	if props == nil {
		return ""
	}
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func pickInt(props map[string]interface{}, key string) int {
	if props == nil {
		return 0
	}
	switch v := props[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func pickBool(props map[string]interface{}, key string) bool {
	if props == nil {
		return false
	}
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}
