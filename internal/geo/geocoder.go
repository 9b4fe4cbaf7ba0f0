package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Geocoder resolves a free-form address to a coordinate. ErrNoResult means
// the address did not resolve; anything else is an infrastructure failure.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// ErrNoResult reports an address the provider could not resolve.
var ErrNoResult = fmt.Errorf("no geocoding result")

// HTTPGeocoder queries a Nominatim-compatible search endpoint.
type HTTPGeocoder struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPGeocoder builds a geocoder against the given base URL.
func NewHTTPGeocoder(baseURL string) *HTTPGeocoder {
	return &HTTPGeocoder{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (Point, error) {
	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s",
		g.BaseURL, url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Point{}, fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("geocode %q: unexpected status %d", address, resp.StatusCode)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Point{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return Point{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse geocode latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse geocode longitude: %w", err)
	}
	return Point{Latitude: lat, Longitude: lon}, nil
}

// StaticGeocoder resolves from a fixed table; unknown addresses return
// ErrNoResult. Used in tests and dev mode.
type StaticGeocoder map[string]Point

func (g StaticGeocoder) Geocode(_ context.Context, address string) (Point, error) {
	if p, ok := g[address]; ok {
		return p, nil
	}
	return Point{}, ErrNoResult
}
