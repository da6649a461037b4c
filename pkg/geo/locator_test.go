package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPLocator_Locate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/198.51.100.7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","city":"Berlin","regionName":"Berlin","country":"Germany","countryCode":"DE"}`))
	}))
	defer server.Close()

	locator := NewHTTPLocator(WithBaseURL(server.URL))
	loc := locator.Locate(context.Background(), "198.51.100.7")

	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "Germany", loc.Country)
	assert.Equal(t, "DE", loc.CountryCode)
	assert.False(t, loc.IsUnknown())
	assert.Equal(t, "Berlin, Berlin, Germany", loc.String())
}

func TestHTTPLocator_FailedLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail"}`))
	}))
	defer server.Close()

	locator := NewHTTPLocator(WithBaseURL(server.URL))
	loc := locator.Locate(context.Background(), "198.51.100.7")

	assert.True(t, loc.IsUnknown())
	assert.Equal(t, UnknownCountryCode, loc.CountryCode)
}

func TestHTTPLocator_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	locator := NewHTTPLocator(WithBaseURL(server.URL))
	loc := locator.Locate(context.Background(), "198.51.100.7")

	assert.True(t, loc.IsUnknown())
}

func TestHTTPLocator_PrivateAddresses(t *testing.T) {
	// The locator must never call out for private or unparseable IPs.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected lookup for %s", r.URL.Path)
	}))
	defer server.Close()

	locator := NewHTTPLocator(WithBaseURL(server.URL))

	for _, ip := range []string{"10.0.0.1", "192.168.1.5", "127.0.0.1", "::1", "not-an-ip", ""} {
		loc := locator.Locate(context.Background(), ip)
		assert.True(t, loc.IsUnknown(), "ip %q should resolve to unknown", ip)
	}
}

func TestStaticLocator(t *testing.T) {
	locator := StaticLocator{Result: Location{City: "Paris", Country: "France", CountryCode: "FR"}}
	loc := locator.Locate(context.Background(), "203.0.113.10")
	assert.Equal(t, "FR", loc.CountryCode)
}

func TestUnknownLocation(t *testing.T) {
	loc := Unknown()
	assert.True(t, loc.IsUnknown())
	assert.Equal(t, "Unknown, Unknown, Unknown", loc.String())
}
