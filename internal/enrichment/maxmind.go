package enrichment

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindProvider resolves IPs against a local MaxMind City database.
// It yields geo fields only: no privacy flags and no company data, so results
// classify as consumer unless the organization matches nothing (the default
// rule also yields consumer). Useful where outbound lookups are not allowed.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

func NewMaxMindProvider(dbPath string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open maxmind database %s: %w", dbPath, err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (*Result, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip %q", ip)
	}

	record, err := p.reader.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("maxmind city lookup: %w", err)
	}

	r := &Result{
		IP:         ip,
		City:       record.City.Names["en"],
		Country:    record.Country.IsoCode,
		PostalCode: record.Postal.Code,
		Latitude:   record.Location.Latitude,
		Longitude:  record.Location.Longitude,
		Timezone:   record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		r.Region = record.Subdivisions[0].Names["en"]
	}
	return r, nil
}

func (p *MaxMindProvider) Close() error {
	return p.reader.Close()
}
