package enrichment

import "context"

// Provider resolves an IP address to raw enrichment data. Classification is
// not the provider's concern; the Service classifies after a successful lookup.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*Result, error)
}
