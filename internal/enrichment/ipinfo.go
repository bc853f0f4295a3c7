package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultIPInfoBaseURL = "https://ipinfo.io"

// IPInfoProvider looks up IP metadata through the IPinfo HTTP API.
type IPInfoProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewIPInfoProvider creates a provider with the given API token.
// timeout bounds each lookup; the pipeline never waits longer than this.
func NewIPInfoProvider(token string, timeout time.Duration) *IPInfoProvider {
	return &IPInfoProvider{
		baseURL: defaultIPInfoBaseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewIPInfoProviderWithBaseURL is used by tests to point at a stub server.
func NewIPInfoProviderWithBaseURL(baseURL, token string, timeout time.Duration) *IPInfoProvider {
	p := NewIPInfoProvider(token, timeout)
	p.baseURL = baseURL
	return p
}

type ipinfoASN struct {
	ASN    string `json:"asn"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type ipinfoCompany struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Type   string `json:"type"`
}

type ipinfoPrivacy struct {
	VPN     bool `json:"vpn"`
	Proxy   bool `json:"proxy"`
	Tor     bool `json:"tor"`
	Hosting bool `json:"hosting"`
}

type ipinfoResponse struct {
	IP       string         `json:"ip"`
	City     string         `json:"city"`
	Region   string         `json:"region"`
	Country  string         `json:"country"`
	Postal   string         `json:"postal"`
	Loc      string         `json:"loc"`
	Timezone string         `json:"timezone"`
	Org      string         `json:"org"`
	ASN      *ipinfoASN     `json:"asn"`
	Company  *ipinfoCompany `json:"company"`
	Privacy  *ipinfoPrivacy `json:"privacy"`
}

func (p *IPInfoProvider) Lookup(ctx context.Context, ip string) (*Result, error) {
	u := fmt.Sprintf("%s/%s?token=%s", p.baseURL, url.PathEscape(ip), url.QueryEscape(p.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build ipinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipinfo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipinfo lookup: unexpected status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ipinfo response: %w", err)
	}

	return body.toResult(ip), nil
}

func (b *ipinfoResponse) toResult(ip string) *Result {
	r := &Result{
		IP:           ip,
		City:         b.City,
		Region:       b.Region,
		Country:      b.Country,
		PostalCode:   b.Postal,
		Timezone:     b.Timezone,
		Organization: b.Org,
	}
	if b.IP != "" {
		r.IP = b.IP
	}

	if lat, lng, ok := parseLoc(b.Loc); ok {
		r.Latitude = lat
		r.Longitude = lng
	}

	if b.ASN != nil {
		r.ASN = b.ASN.ASN
		r.ASNName = b.ASN.Name
		r.ASNDomain = b.ASN.Domain
	}
	if r.ASNName == "" {
		r.ASNName = b.Org
	}

	if b.Company != nil {
		r.CompanyName = b.Company.Name
		r.CompanyDomain = b.Company.Domain
		r.ConnectionType = b.Company.Type
	}

	if b.Privacy != nil {
		r.IsVPN = b.Privacy.VPN
		r.IsProxy = b.Privacy.Proxy
		r.IsTor = b.Privacy.Tor
		r.IsHosting = b.Privacy.Hosting
	}
	if r.ConnectionType == "" {
		if r.IsVPN {
			r.ConnectionType = "vpn"
		} else {
			r.ConnectionType = "residential"
		}
	}

	return r
}

// parseLoc splits an ipinfo "lat,lng" pair.
func parseLoc(loc string) (float64, float64, bool) {
	parts := strings.SplitN(loc, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
