package device

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FingerprintData contains the raw request traits used to fingerprint a device.
type FingerprintData struct {
	UserAgent        string
	IPAddress        string
	ScreenResolution string
	Timezone         string
	Language         string
	DeviceID         string // set by native mobile clients via X-Device-ID
}

// Traits is the parsed, canonical view of a client derived from its
// user agent plus the optional client-supplied hints. Field order matches
// the canonical serialization and must not change, or every stored
// fingerprint digest is invalidated.
type Traits struct {
	BrowserFamily    string `json:"browser_family"`
	BrowserVersion   string `json:"browser_version"`
	DeviceFamily     string `json:"device_family"`
	IsMobile         bool   `json:"is_mobile"`
	IsPC             bool   `json:"is_pc"`
	IsTablet         bool   `json:"is_tablet"`
	Language         string `json:"language,omitempty"`
	OSFamily         string `json:"os_family"`
	OSVersion        string `json:"os_version"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
}

// Fingerprint returns the SHA-256 hex digest of the canonical JSON
// serialization of the parsed traits. The same inputs always produce the
// same digest.
func Fingerprint(data FingerprintData) string {
	// Native mobile clients send a stable installation ID, which is a far
	// stronger identifier than anything derivable from the user agent.
	if data.DeviceID != "" {
		hash := sha256.Sum256([]byte(data.DeviceID))
		return hex.EncodeToString(hash[:])
	}

	traits := ParseUserAgent(data.UserAgent)
	traits.ScreenResolution = data.ScreenResolution
	traits.Timezone = data.Timezone
	traits.Language = data.Language

	// json.Marshal emits struct fields in declaration order, which is the
	// canonical key order for Traits.
	serialized, err := json.Marshal(traits)
	if err != nil {
		// Traits contains only strings and bools; Marshal cannot fail.
		serialized = []byte(data.UserAgent)
	}

	hash := sha256.Sum256(serialized)
	return hex.EncodeToString(hash[:])
}

// ExtractFromRequest collects fingerprint inputs from an HTTP request.
// The screen resolution, timezone, and language hints are optional headers
// set by the web client.
func ExtractFromRequest(r *http.Request, ip string) FingerprintData {
	return FingerprintData{
		UserAgent:        r.UserAgent(),
		IPAddress:        ip,
		ScreenResolution: r.Header.Get("Screen-Resolution"),
		Timezone:         r.Header.Get("Timezone"),
		Language:         r.Header.Get("Accept-Language"),
		DeviceID:         r.Header.Get("X-Device-ID"),
	}
}

// DisplayName builds a human-readable device label such as
// "Desktop - Windows - Chrome".
func DisplayName(traits Traits) string {
	kind := "Desktop"
	if traits.IsTablet {
		kind = "Tablet"
	} else if traits.IsMobile {
		kind = "Mobile"
	}
	return fmt.Sprintf("%s - %s - %s", kind, traits.OSFamily, traits.BrowserFamily)
}

// ParseUserAgent classifies a user-agent string into browser, OS, and
// device families. An empty or unrecognized user agent yields the "Other"
// families rather than an error.
func ParseUserAgent(userAgent string) Traits {
	traits := Traits{
		BrowserFamily: "Other",
		DeviceFamily:  "Other",
		OSFamily:      "Other",
	}
	if userAgent == "" {
		return traits
	}

	traits.IsTablet = isTabletUserAgent(userAgent)
	traits.IsMobile = !traits.IsTablet && isMobileUserAgent(userAgent)
	traits.IsPC = !traits.IsTablet && !traits.IsMobile

	traits.OSFamily, traits.OSVersion = parseOS(userAgent)
	traits.BrowserFamily, traits.BrowserVersion = parseBrowser(userAgent)
	traits.DeviceFamily = parseDeviceFamily(userAgent)

	return traits
}

func parseOS(userAgent string) (family, version string) {
	switch {
	case contains(userAgent, "Windows Phone"):
		return "Windows Phone", versionAfter(userAgent, "Windows Phone ")
	case contains(userAgent, "Windows NT"):
		return "Windows", versionAfter(userAgent, "Windows NT ")
	case contains(userAgent, "iPhone OS"), contains(userAgent, "iPad; CPU OS"):
		return "iOS", strings.ReplaceAll(versionAfter(userAgent, "OS "), "_", ".")
	case contains(userAgent, "Mac OS X"):
		return "Mac OS X", strings.ReplaceAll(versionAfter(userAgent, "Mac OS X "), "_", ".")
	case contains(userAgent, "Android"):
		return "Android", versionAfter(userAgent, "Android ")
	case contains(userAgent, "CrOS"):
		return "Chrome OS", ""
	case contains(userAgent, "Linux"):
		return "Linux", ""
	}
	return "Other", ""
}

func parseBrowser(userAgent string) (family, version string) {
	// Order matters: Edge and Opera embed "Chrome", Chrome embeds "Safari".
	switch {
	case contains(userAgent, "Edg/"), contains(userAgent, "Edge/"):
		if v := versionAfter(userAgent, "Edg/"); v != "" {
			return "Edge", v
		}
		return "Edge", versionAfter(userAgent, "Edge/")
	case contains(userAgent, "OPR/"), contains(userAgent, "Opera"):
		return "Opera", versionAfter(userAgent, "OPR/")
	case contains(userAgent, "Firefox/"):
		return "Firefox", versionAfter(userAgent, "Firefox/")
	case contains(userAgent, "Chrome/"):
		return "Chrome", versionAfter(userAgent, "Chrome/")
	case contains(userAgent, "Safari/") && contains(userAgent, "Version/"):
		return "Safari", versionAfter(userAgent, "Version/")
	case contains(userAgent, "Safari/"):
		return "Safari", ""
	}
	return "Other", ""
}

func parseDeviceFamily(userAgent string) string {
	switch {
	case contains(userAgent, "iPhone"):
		return "iPhone"
	case contains(userAgent, "iPad"):
		return "iPad"
	case contains(userAgent, "Pixel"):
		return "Google Pixel"
	case contains(userAgent, "Samsung"), contains(userAgent, "SM-"):
		return "Samsung"
	case contains(userAgent, "Android"):
		return "Android Device"
	case contains(userAgent, "Macintosh"):
		return "Mac"
	case contains(userAgent, "Windows"):
		return "Windows PC"
	case contains(userAgent, "CrOS"):
		return "Chromebook"
	case contains(userAgent, "Linux"):
		return "Linux PC"
	}
	return "Other"
}

func isMobileUserAgent(userAgent string) bool {
	mobileKeywords := []string{
		"iphone", "ipod", "windows phone", "blackberry", "opera mini",
		"opera mobi", "mobile", "nokia", "symbian", "webos", "palm",
	}
	for _, keyword := range mobileKeywords {
		if contains(userAgent, keyword) {
			return true
		}
	}
	return false
}

func isTabletUserAgent(userAgent string) bool {
	if contains(userAgent, "iPad") || contains(userAgent, "Tablet") {
		return true
	}
	// Android tablets report Android without the Mobile token.
	return contains(userAgent, "Android") && !contains(userAgent, "Mobile")
}

// versionAfter extracts a dotted (or underscored) version number that
// immediately follows the marker, stopping at the first foreign character.
func versionAfter(userAgent, marker string) string {
	idx := strings.Index(userAgent, marker)
	if idx < 0 {
		return ""
	}
	rest := userAgent[idx+len(marker):]
	end := 0
	for end < len(rest) {
		c := rest[end]
		if (c < '0' || c > '9') && c != '.' && c != '_' {
			break
		}
		end++
	}
	return rest[:end]
}

// contains checks if a string contains a substring (case insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
