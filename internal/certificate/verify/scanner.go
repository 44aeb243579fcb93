package verify

import (
	"strings"

	"github.com/mssola/useragent"
)

// Scanner summarizes the client that scanned a certificate.
type Scanner struct {
	Display string
	Mobile  bool
	Bot     bool
}

// DescribeScanner extracts a "Browser on OS" display name from a User-Agent.
func DescribeScanner(userAgent string) Scanner {
	if strings.TrimSpace(userAgent) == "" {
		return Scanner{Display: "unknown"}
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return Scanner{
		Display: strings.TrimSpace(browser + " on " + os),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}
