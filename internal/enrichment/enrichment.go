package enrichment

// VisitorType is the categorical label describing the likely nature of a
// visitor's connection, derived deterministically from the enrichment result.
type VisitorType string

const (
	VisitorBusiness VisitorType = "business"
	VisitorConsumer VisitorType = "consumer"
	VisitorBot      VisitorType = "bot"
	VisitorVPN      VisitorType = "vpn"
	VisitorUnknown  VisitorType = "unknown"
)

// Result is the metadata derived from one IP address. It is never mutated
// after classification; a re-fetch replaces it wholesale.
type Result struct {
	IP             string  `json:"ip"`
	City           string  `json:"city,omitempty"`
	Region         string  `json:"region,omitempty"`
	Country        string  `json:"country,omitempty"`
	PostalCode     string  `json:"postal_code,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	Timezone       string  `json:"timezone,omitempty"`
	Organization   string  `json:"organization,omitempty"`
	ASN            string  `json:"asn,omitempty"`
	ASNName        string  `json:"asn_name,omitempty"`
	ASNDomain      string  `json:"asn_domain,omitempty"`
	CompanyName    string  `json:"company_name,omitempty"`
	CompanyDomain  string  `json:"company_domain,omitempty"`
	ConnectionType string  `json:"connection_type,omitempty"`

	IsVPN     bool `json:"is_vpn"`
	IsProxy   bool `json:"is_proxy"`
	IsTor     bool `json:"is_tor"`
	IsHosting bool `json:"is_hosting"`

	VisitorType VisitorType `json:"visitor_type"`
}

// UnknownResult returns the fully-null degraded result used when the provider
// is unavailable or the IP is missing. It is never cached, so the next event
// for the same IP retries the provider.
func UnknownResult(ip string) *Result {
	return &Result{IP: ip, VisitorType: VisitorUnknown}
}
