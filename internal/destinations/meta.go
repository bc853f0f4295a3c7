package destinations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	"github.com/shopspring/decimal"
)

const defaultMetaEndpoint = "https://graph.facebook.com/v18.0"

// Meta forwards events through the Facebook Conversions API. Hashed PII from
// the canonical event is passed through for enhanced matching; this adapter
// never hashes anything itself.
type Meta struct {
	endpoint string
	client   *http.Client
}

func NewMeta(client *http.Client) *Meta {
	return &Meta{endpoint: defaultMetaEndpoint, client: client}
}

func NewMetaWithEndpoint(client *http.Client, endpoint string) *Meta {
	return &Meta{endpoint: endpoint, client: client}
}

func (d *Meta) Name() string { return "meta" }

func (d *Meta) Settings(site Config) *Settings {
	if site.Meta == nil {
		return nil
	}
	return &site.Meta.Settings
}

type metaUserData struct {
	Em              string `json:"em,omitempty"`
	Ph              string `json:"ph,omitempty"`
	Fn              string `json:"fn,omitempty"`
	Ln              string `json:"ln,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	FBC             string `json:"fbc,omitempty"`
	FBP             string `json:"fbp,omitempty"`
}

type metaEvent struct {
	EventName    string                 `json:"event_name"`
	EventTime    int64                  `json:"event_time"`
	ActionSource string                 `json:"action_source"`
	EventID      string                 `json:"event_id"`
	UserData     metaUserData           `json:"user_data"`
	CustomData   map[string]interface{} `json:"custom_data,omitempty"`
}

type metaPayload struct {
	Data []metaEvent `json:"data"`
}

// resolveMetaToken is the two-level credential lookup: site access token
// first, then the agency system-user token.
func resolveMetaToken(cfg *MetaConfig, agency *AgencyConfig) (string, error) {
	if cfg.AccessToken != "" {
		return cfg.AccessToken, nil
	}
	if agency != nil && agency.Meta != nil && agency.Meta.SystemUserToken != "" {
		return agency.Meta.SystemUserToken, nil
	}
	return "", ErrNoCredential
}

func (d *Meta) Send(ctx context.Context, evt *v1.Event, site Config, agency *AgencyConfig) error {
	cfg := site.Meta
	if cfg.PixelID == "" {
		return ErrNoCredential
	}

	token, err := resolveMetaToken(cfg, agency)
	if err != nil {
		return err
	}

	body, err := json.Marshal(d.translate(evt))
	if err != nil {
		return fmt.Errorf("meta payload: %w", err)
	}

	u := fmt.Sprintf("%s/%s/events", d.endpoint, cfg.PixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("meta request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("meta delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("meta delivery: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (d *Meta) translate(evt *v1.Event) metaPayload {
	name := evt.Name
	if name == "page_view" {
		name = "PageView"
	}

	now := time.Now().UnixMilli()
	user := metaUserData{
		Em:              evt.EmailHash,
		Ph:              evt.PhoneHash,
		Fn:              evt.FirstNameHash,
		Ln:              evt.LastNameHash,
		ClientIPAddress: evt.IPAddress,
		ClientUserAgent: evt.UserAgent,
	}
	if evt.FBCLID != "" {
		user.FBC = fmt.Sprintf("fb.1.%d.%s", now, evt.FBCLID)
	}
	if evt.ClientID != "" {
		user.FBP = fmt.Sprintf("fb.1.%d.%s", now, evt.ClientID)
	}

	custom := map[string]interface{}{
		"currency":     "USD",
		"content_type": "product",
	}
	if evt.PageTitle != "" {
		custom["content_name"] = evt.PageTitle
	}
	if v, ok := propertyDecimal(evt.Properties, "value"); ok {
		custom["value"] = v
	}
	if c, ok := evt.Properties["currency"].(string); ok && c != "" {
		custom["currency"] = c
	}
	// Ecommerce line items override the generic custom data wholesale.
	if len(evt.Ecommerce) > 0 {
		custom = evt.Ecommerce
	}

	return metaPayload{Data: []metaEvent{{
		EventName:    name,
		EventTime:    evt.Timestamp / 1000,
		ActionSource: "website",
		EventID:      evt.ID,
		UserData:     user,
		CustomData:   custom,
	}}}
}

// propertyDecimal reads a monetary value from the property bag, accepting
// either a JSON number or a numeric string.
func propertyDecimal(props map[string]interface{}, key string) (decimal.Decimal, bool) {
	if props == nil {
		return decimal.Decimal{}, false
	}
	switch v := props[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}
