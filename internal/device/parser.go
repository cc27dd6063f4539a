package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Sentinel values used when a user agent cannot be parsed, so downstream
// summaries are always renderable.
const (
	UnknownBrowser = "Unknown Browser"
	UnknownOS      = "Unknown OS"
	UnknownDevice  = "Unknown Device"
)

// Info is the structured result of parsing a user-agent string.
type Info struct {
	Browser  string `json:"browser"`
	Platform string `json:"platform"`
	Device   string `json:"device"`
	IsMobile bool   `json:"is_mobile"`
}

// Summary returns "Platform / Browser (Device)".
func (i Info) Summary() string {
	return i.Platform + " / " + i.Browser + " (" + i.Device + ")"
}

// Parser wraps the user-agent library behind the narrow contract the event
// pipeline needs.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts browser, platform, and device identity from a raw
// user-agent string. Missing fields fall back to sentinels, never empty
// strings.
func (p *Parser) Parse(userAgentString string) Info {
	info := Info{
		Browser:  UnknownBrowser,
		Platform: UnknownOS,
		Device:   UnknownDevice,
	}
	if strings.TrimSpace(userAgentString) == "" {
		return info
	}

	ua := useragent.New(userAgentString)

	if browser, _ := ua.Browser(); strings.TrimSpace(browser) != "" {
		info.Browser = strings.TrimSpace(browser)
	}
	if os := strings.TrimSpace(ua.OS()); os != "" {
		info.Platform = os
	}
	if platform := strings.TrimSpace(ua.Platform()); platform != "" {
		info.Device = platform
	}
	info.IsMobile = ua.Mobile()

	return info
}
