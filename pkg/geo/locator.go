// Package geo resolves client IP addresses to coarse locations for the
// trusted-device geography check.
//
// Geolocation is advisory: lookups that fail or cannot be resolved return
// the unknown location rather than an error, so a resolver outage never
// blocks logins. The trusted-device check treats the unknown country code
// as a pass, trading some strictness for availability.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// UnknownCountryCode marks a location that could not be resolved.
const UnknownCountryCode = "XX"

// Location is the coarse geolocation of a client IP.
type Location struct {
	City        string
	Region      string
	Country     string
	CountryCode string
}

// Unknown returns the sentinel location used when resolution is not possible.
func Unknown() Location {
	return Location{
		City:        "Unknown",
		Region:      "Unknown",
		Country:     "Unknown",
		CountryCode: UnknownCountryCode,
	}
}

// IsUnknown reports whether the location carries the unknown sentinel.
func (l Location) IsUnknown() bool {
	return l.CountryCode == "" || l.CountryCode == UnknownCountryCode
}

// String renders the location as "City, Region, Country" for device records.
func (l Location) String() string {
	return fmt.Sprintf("%s, %s, %s", l.City, l.Region, l.Country)
}

// Locator resolves an IP address to a Location.
type Locator interface {
	Locate(ctx context.Context, ip string) Location
}

// HTTPLocator resolves locations through the ip-api.com JSON endpoint.
type HTTPLocator struct {
	client  *http.Client
	baseURL string
}

// HTTPLocatorOption configures an HTTPLocator.
type HTTPLocatorOption func(*HTTPLocator)

// WithBaseURL overrides the resolver endpoint, used by tests.
func WithBaseURL(baseURL string) HTTPLocatorOption {
	return func(l *HTTPLocator) {
		l.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPLocatorOption {
	return func(l *HTTPLocator) {
		l.client = client
	}
}

// NewHTTPLocator creates a Locator backed by ip-api.com.
func NewHTTPLocator(opts ...HTTPLocatorOption) *HTTPLocator {
	locator := &HTTPLocator{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: "http://ip-api.com/json",
	}
	for _, opt := range opts {
		opt(locator)
	}
	return locator
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	City        string `json:"city"`
	RegionName  string `json:"regionName"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// Locate resolves ip to a Location. Private, loopback, and unparseable
// addresses short-circuit to the unknown location without a network call.
func (l *HTTPLocator) Locate(ctx context.Context, ip string) Location {
	if isPrivateIP(ip) {
		return Unknown()
	}

	endpoint := fmt.Sprintf("%s/%s", l.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Warn("Failed to build geolocation request", "err", err)
		return Unknown()
	}

	resp, err := l.client.Do(req)
	if err != nil {
		slog.Warn("Geolocation lookup failed", "err", err)
		return Unknown()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Geolocation lookup returned non-OK status", "status", resp.StatusCode)
		return Unknown()
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Warn("Failed to decode geolocation response", "err", err)
		return Unknown()
	}
	if body.Status != "success" || body.CountryCode == "" {
		return Unknown()
	}

	loc := Location{
		City:        body.City,
		Region:      body.RegionName,
		Country:     body.Country,
		CountryCode: body.CountryCode,
	}
	if loc.City == "" {
		loc.City = "Unknown"
	}
	if loc.Region == "" {
		loc.Region = "Unknown"
	}
	if loc.Country == "" {
		loc.Country = "Unknown"
	}
	return loc
}

// StaticLocator returns a fixed location, used by tests and local setups.
type StaticLocator struct {
	Result Location
}

func (l StaticLocator) Locate(ctx context.Context, ip string) Location {
	return l.Result
}

func isPrivateIP(ip string) bool {
	if ip == "" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast()
}
