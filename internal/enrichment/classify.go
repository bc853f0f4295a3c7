package enrichment

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultConsumerISPs is the curated residential-ISP name list used for the
// consumer classification rule. Matching is case-insensitive substring.
var defaultConsumerISPs = []string{
	"comcast", "at&t", "verizon", "charter", "cox", "spectrum",
	"centurylink", "frontier", "optimum", "xfinity", "time warner",
	"suddenlink", "windstream", "mediacom", "wow", "rcn", "bt group",
	"virgin media", "sky broadband", "talktalk", "vodafone", "orange",
	"telekom", "swisscom", "telstra", "optus", "rogers", "bell canada",
}

type ispListFile struct {
	Patterns []string `yaml:"patterns"`
}

// LoadConsumerISPs loads ISP name patterns from a YAML file of the shape
// {patterns: [...]}. An empty path returns the built-in default list.
func LoadConsumerISPs(path string) ([]string, error) {
	if path == "" {
		return defaultConsumerISPs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading isp list %s: %w", path, err)
	}

	var f ispListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing isp list %s: %w", path, err)
	}
	if len(f.Patterns) == 0 {
		return nil, fmt.Errorf("isp list %s contains no patterns", path)
	}

	patterns := make([]string, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns, nil
}

// Classify derives the visitor type from an enrichment result.
// The rules are ordered; the first match wins:
//  1. privacy flags (vpn/proxy/tor) -> vpn
//  2. hosting flag -> bot
//  3. company name and domain both present -> business
//  4. organization matches a consumer-ISP pattern -> consumer
//  5. default -> consumer
func Classify(r *Result, consumerISPs []string) VisitorType {
	if r.IsVPN || r.IsProxy || r.IsTor {
		return VisitorVPN
	}

	if r.IsHosting {
		return VisitorBot
	}

	if r.CompanyName != "" && r.CompanyDomain != "" {
		return VisitorBusiness
	}

	if r.Organization != "" {
		org := strings.ToLower(r.Organization)
		for _, isp := range consumerISPs {
			if strings.Contains(org, isp) {
				return VisitorConsumer
			}
		}
	}

	return VisitorConsumer
}
