package destinations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/beaconhq/beacon-collector/internal/api/v1"
	"github.com/stretchr/testify/require"
)

func metaSite(pixelID, token string) Config {
	return Config{Meta: &MetaConfig{
		Settings:    Settings{Enabled: true},
		PixelID:     pixelID,
		AccessToken: token,
	}}
}

func TestMetaSend(t *testing.T) {
	var got metaPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/px-1/events", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewMetaWithEndpoint(srv.Client(), srv.URL)
	evt := &v1.Event{
		ID:        "evt-1",
		Name:      "page_view",
		ClientID:  "client-1",
		Timestamp: 1700000000000,
		EmailHash: "abcd1234",
		IPAddress: "203.0.113.10",
		UserAgent: "Mozilla/5.0",
		FBCLID:    "click-99",
	}

	require.NoError(t, d.Send(context.Background(), evt, metaSite("px-1", "site-token"), nil))

	require.Equal(t, "Bearer site-token", auth)
	require.Len(t, got.Data, 1)
	require.Equal(t, "PageView", got.Data[0].EventName)
	require.Equal(t, int64(1700000000), got.Data[0].EventTime)
	require.Equal(t, "website", got.Data[0].ActionSource)
	require.Equal(t, "abcd1234", got.Data[0].UserData.Em)
	require.Contains(t, got.Data[0].UserData.FBC, "click-99")
	require.Contains(t, got.Data[0].UserData.FBP, "client-1")
}

func TestMetaSend_AgencyTokenFallback(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewMetaWithEndpoint(srv.Client(), srv.URL)
	agency := &AgencyConfig{Meta: &AgencyMetaConfig{SystemUserToken: "agency-token"}}

	err := d.Send(context.Background(), &v1.Event{Name: "purchase"}, metaSite("px-1", ""), agency)
	require.NoError(t, err)
	require.Equal(t, "Bearer agency-token", auth)
}

func TestMetaSend_NoTokenAnywhere(t *testing.T) {
	d := NewMetaWithEndpoint(http.DefaultClient, "http://unused")

	err := d.Send(context.Background(), &v1.Event{Name: "purchase"}, metaSite("px-1", ""), nil)
	require.ErrorIs(t, err, ErrNoCredential)

	// An agency without a Meta credential does not help either.
	err = d.Send(context.Background(), &v1.Event{Name: "purchase"}, metaSite("px-1", ""), &AgencyConfig{})
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestMetaSend_MissingPixel(t *testing.T) {
	d := NewMetaWithEndpoint(http.DefaultClient, "http://unused")
	err := d.Send(context.Background(), &v1.Event{Name: "purchase"}, metaSite("", "token"), nil)
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestMetaTranslate_CustomData(t *testing.T) {
	d := NewMeta(http.DefaultClient)

	evt := &v1.Event{
		Name:      "purchase",
		PageTitle: "Checkout",
		Properties: map[string]interface{}{
			"value":    float64(49.99),
			"currency": "EUR",
		},
	}
	payload := d.translate(evt)
	custom := payload.Data[0].CustomData
	require.Equal(t, "EUR", custom["currency"])
	require.Equal(t, "Checkout", custom["content_name"])
	require.NotNil(t, custom["value"])

	// Ecommerce data replaces the generic custom data wholesale.
	evt.Ecommerce = map[string]interface{}{"items": []interface{}{"sku-1"}}
	payload = d.translate(evt)
	require.Equal(t, evt.Ecommerce, payload.Data[0].CustomData)
}
