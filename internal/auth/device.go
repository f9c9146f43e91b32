package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// Device types recorded on sessions.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// DeviceInfo is the request-derived description of the client opening a session.
type DeviceInfo struct {
	Type      string
	Browser   string
	OS        string
	UserAgent string
	IPAddress string
	Country   string
	City      string
}

// ParseDevice derives device details from the User-Agent and coarse location from edge proxy
// headers. The header may be nil.
func ParseDevice(userAgent, ip string, header http.Header) DeviceInfo {
	info := DeviceInfo{
		Type:      DeviceUnknown,
		UserAgent: truncate(strings.TrimSpace(userAgent), 512),
		IPAddress: strings.TrimSpace(ip),
	}

	if info.UserAgent != "" {
		ua := useragent.New(info.UserAgent)
		name, version := ua.Browser()
		info.Browser = strings.TrimSpace(strings.TrimSpace(name + " " + majorVersion(version)))
		info.OS = strings.TrimSpace(ua.OS())

		lower := strings.ToLower(info.UserAgent)
		switch {
		case ua.Bot():
			info.Type = DeviceBot
		case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
			info.Type = DeviceTablet
		case ua.Mobile():
			info.Type = DeviceMobile
		default:
			info.Type = DeviceDesktop
		}
	}

	if header != nil {
		info.Country = firstHeader(header, "CF-IPCountry", "X-Geo-Country", "X-Country-Code")
		if info.Country == "XX" || info.Country == "T1" {
			// Cloudflare placeholders for unknown and Tor exit nodes.
			info.Country = ""
		}
		info.City = firstHeader(header, "X-Geo-City", "CF-IPCity")
	}

	return info
}

// Summary renders a short human readable description stored with refresh tokens.
func (d DeviceInfo) Summary() string {
	browser := d.Browser
	if browser == "" {
		browser = "Unknown browser"
	}
	if d.OS == "" {
		return fmt.Sprintf("%s (%s)", browser, d.Type)
	}
	return fmt.Sprintf("%s on %s (%s)", browser, d.OS, d.Type)
}

func firstHeader(header http.Header, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(header.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

func majorVersion(version string) string {
	if idx := strings.IndexByte(version, '.'); idx > 0 {
		return version[:idx]
	}
	return version
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
