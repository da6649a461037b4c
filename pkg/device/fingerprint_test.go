package device

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	androidTabletUA = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	ipadUA          = "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
)

func TestFingerprint_Deterministic(t *testing.T) {
	data := FingerprintData{
		UserAgent:        chromeWindowsUA,
		IPAddress:        "203.0.113.10",
		ScreenResolution: "1920x1080",
		Timezone:         "America/New_York",
		Language:         "en-US",
	}

	first := Fingerprint(data)
	second := Fingerprint(data)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprint_ChangesWithTraits(t *testing.T) {
	base := FingerprintData{UserAgent: chromeWindowsUA, ScreenResolution: "1920x1080"}
	changed := base
	changed.ScreenResolution = "2560x1440"

	assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
}

func TestFingerprint_IPDoesNotAffectDigest(t *testing.T) {
	base := FingerprintData{UserAgent: chromeWindowsUA, IPAddress: "203.0.113.10"}
	moved := base
	moved.IPAddress = "198.51.100.7"

	assert.Equal(t, Fingerprint(base), Fingerprint(moved))
}

func TestFingerprint_DeviceIDShortcut(t *testing.T) {
	withID := FingerprintData{UserAgent: chromeWindowsUA, DeviceID: "install-abc-123"}
	sameIDDifferentUA := FingerprintData{UserAgent: safariIphoneUA, DeviceID: "install-abc-123"}

	assert.Equal(t, Fingerprint(withID), Fingerprint(sameIDDifferentUA),
		"device ID should override user agent traits")
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		browser   string
		os        string
		isMobile  bool
		isTablet  bool
		isPC      bool
	}{
		{"chrome on windows", chromeWindowsUA, "Chrome", "Windows", false, false, true},
		{"safari on iphone", safariIphoneUA, "Safari", "iOS", true, false, false},
		{"android tablet", androidTabletUA, "Chrome", "Android", false, true, false},
		{"ipad", ipadUA, "Safari", "iOS", false, true, false},
		{"empty", "", "Other", "Other", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traits := ParseUserAgent(tt.userAgent)
			assert.Equal(t, tt.browser, traits.BrowserFamily)
			assert.Equal(t, tt.os, traits.OSFamily)
			assert.Equal(t, tt.isMobile, traits.IsMobile)
			assert.Equal(t, tt.isTablet, traits.IsTablet)
			assert.Equal(t, tt.isPC, traits.IsPC)
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Desktop - Windows - Chrome", DisplayName(ParseUserAgent(chromeWindowsUA)))
	assert.Equal(t, "Mobile - iOS - Safari", DisplayName(ParseUserAgent(safariIphoneUA)))
	assert.Equal(t, "Tablet - Android - Chrome", DisplayName(ParseUserAgent(androidTabletUA)))
}

func TestExtractFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/signin", nil)
	r.Header.Set("User-Agent", chromeWindowsUA)
	r.Header.Set("Screen-Resolution", "1920x1080")
	r.Header.Set("Timezone", "Europe/Berlin")
	r.Header.Set("Accept-Language", "de-DE")
	r.Header.Set("X-Device-ID", "install-xyz")

	data := ExtractFromRequest(r, "203.0.113.10")

	assert.Equal(t, chromeWindowsUA, data.UserAgent)
	assert.Equal(t, "203.0.113.10", data.IPAddress)
	assert.Equal(t, "1920x1080", data.ScreenResolution)
	assert.Equal(t, "Europe/Berlin", data.Timezone)
	assert.Equal(t, "de-DE", data.Language)
	assert.Equal(t, "install-xyz", data.DeviceID)
}
