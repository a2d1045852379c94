// Package device derives a human-readable display name for a session from
// the caller's User-Agent header. The name is stored alongside the session
// so users can recognize their own sign-ins.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// DisplayName extracts a "Browser on OS" label from a User-Agent string,
// e.g. "Chrome on macOS" or "Safari on iPhone".
func DisplayName(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgentString)

	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		platform := ua.Platform()
		if platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}

	return strings.TrimSpace(browser + " on " + os)
}
