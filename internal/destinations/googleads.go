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

const defaultGoogleAdsEndpoint = "https://googleads.googleapis.com/v15"

// GoogleAds uploads offline click conversions. Events without a GCLID do not
// represent an ad click and are skipped rather than failed.
type GoogleAds struct {
	endpoint string
	client   *http.Client
}

func NewGoogleAds(client *http.Client) *GoogleAds {
	return &GoogleAds{endpoint: defaultGoogleAdsEndpoint, client: client}
}

func NewGoogleAdsWithEndpoint(client *http.Client, endpoint string) *GoogleAds {
	return &GoogleAds{endpoint: endpoint, client: client}
}

func (d *GoogleAds) Name() string { return "googleAds" }

func (d *GoogleAds) Settings(site Config) *Settings {
	if site.GoogleAds == nil {
		return nil
	}
	return &site.GoogleAds.Settings
}

type adsUserIdentifier struct {
	HashedEmail       string `json:"hashedEmail,omitempty"`
	HashedPhoneNumber string `json:"hashedPhoneNumber,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
}

type adsCustomVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type adsConversion struct {
	GCLID              string              `json:"gclid"`
	ConversionAction   string              `json:"conversionAction"`
	ConversionDateTime string              `json:"conversionDateTime"`
	ConversionValue    decimal.Decimal     `json:"conversionValue"`
	CurrencyCode       string              `json:"currencyCode"`
	UserIdentifiers    []adsUserIdentifier `json:"userIdentifiers,omitempty"`
	CustomVariables    []adsCustomVariable `json:"customVariables,omitempty"`
}

type adsPayload struct {
	Conversions []adsConversion `json:"conversions"`
}

func (d *GoogleAds) Send(ctx context.Context, evt *v1.Event, site Config, _ *AgencyConfig) error {
	cfg := site.GoogleAds
	if cfg.CustomerID == "" || cfg.AccessToken == "" || cfg.ConversionAction == "" {
		return ErrNoCredential
	}

	if evt.GCLID == "" {
		return &SkipError{Reason: "no gclid"}
	}

	body, err := json.Marshal(d.translate(evt, cfg))
	if err != nil {
		return fmt.Errorf("google ads payload: %w", err)
	}

	u := fmt.Sprintf("%s/customers/%s/conversionUploads:upload", d.endpoint, cfg.CustomerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("google ads request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
	if cfg.DeveloperToken != "" {
		req.Header.Set("developer-token", cfg.DeveloperToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("google ads delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("google ads delivery: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (d *GoogleAds) translate(evt *v1.Event, cfg *GoogleAdsConfig) adsPayload {
	value := decimal.Zero
	if v, ok := propertyDecimal(evt.Properties, "value"); ok {
		value = v
	}

	currency := cfg.CurrencyCode
	if c, ok := evt.Properties["currency"].(string); ok && c != "" {
		currency = c
	}
	if currency == "" {
		currency = "USD"
	}

	return adsPayload{Conversions: []adsConversion{{
		GCLID:              evt.GCLID,
		ConversionAction:   cfg.ConversionAction,
		ConversionDateTime: time.UnixMilli(evt.Timestamp).UTC().Format(time.RFC3339),
		ConversionValue:    value,
		CurrencyCode:       currency,
		UserIdentifiers: []adsUserIdentifier{{
			HashedEmail:       evt.EmailHash,
			HashedPhoneNumber: evt.PhoneHash,
			UserAgent:         evt.UserAgent,
			IPAddress:         evt.IPAddress,
		}},
		CustomVariables: []adsCustomVariable{
			{Key: "event_name", Value: evt.Name},
			{Key: "page_url", Value: evt.PageURL},
		},
	}}}
}
