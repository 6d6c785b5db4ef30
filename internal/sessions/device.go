package sessions

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceName extracts a human-readable device display name from a
// User-Agent string, in the form "Browser on OS" (e.g. "Chrome on macOS",
// "Safari on iPhone").
func DeviceName(userAgentString string) string {
	if strings.TrimSpace(userAgentString) == "" {
		return "Unknown device"
	}

	ua := useragent.New(userAgentString)

	browser, _ := ua.Browser()
	os := ua.OSInfo().Name

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(orElse(browser, "Unknown browser") + " on " + platform)
		}
	}

	if ua.Bot() {
		if browser != "" {
			return browser + " (bot)"
		}
		return "Bot"
	}

	return strings.TrimSpace(orElse(browser, "Unknown browser") + " on " + orElse(os, "unknown OS"))
}

func orElse(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}
