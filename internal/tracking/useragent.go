package tracking

import (
	"strings"

	ua "github.com/mileusna/useragent"
)

// Device categories stored on the canonical event.
const (
	deviceMobile  = "mobile"
	deviceTablet  = "tablet"
	deviceDesktop = "desktop"
	deviceBot     = "bot"
	deviceUnknown = "unknown"
)

type deviceInfo struct {
	Category        string
	Browser         string
	BrowserVersion  string
	OperatingSystem string
}

// parseUserAgent derives device and browser metadata from the raw header.
// An empty or unrecognized header yields the unknown category, never an error.
func parseUserAgent(raw string) deviceInfo {
	if raw == "" {
		return deviceInfo{Category: deviceUnknown}
	}

	parsed := ua.Parse(raw)

	category := deviceUnknown
	switch {
	case parsed.Bot:
		category = deviceBot
	case parsed.Tablet:
		category = deviceTablet
	case parsed.Mobile:
		category = deviceMobile
	case parsed.Desktop:
		category = deviceDesktop
	}

	return deviceInfo{
		Category:        category,
		Browser:         parsed.Name,
		BrowserVersion:  parsed.Version,
		OperatingSystem: strings.TrimSpace(parsed.OS + " " + parsed.OSVersion),
	}
}
