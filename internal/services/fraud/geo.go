package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// GeoLocator resolves an IP address to a location.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

// HTTPGeoLocator queries an ip-api style JSON endpoint: GET <base>/<ip>.
type HTTPGeoLocator struct {
	baseURL string
	timeout time.Duration
}

func NewHTTPGeoLocator(baseURL string, timeout time.Duration) *HTTPGeoLocator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPGeoLocator{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

type geoResponse struct {
	Status string   `json:"status"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
}

func (g *HTTPGeoLocator) Locate(ctx context.Context, ip string) (*Location, error) {
	if ip == "" {
		return nil, nil
	}
	code, body, errs := fiber.Get(g.baseURL + "/" + url.PathEscape(ip)).Timeout(g.timeout).Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("geolocation lookup failed: %w", errs[0])
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("geolocation lookup returned %d", code)
	}

	var resp geoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode geolocation: %w", err)
	}
	if resp.Status == "fail" || resp.Lat == nil || resp.Lon == nil {
		return nil, nil
	}
	return &Location{Latitude: *resp.Lat, Longitude: *resp.Lon}, nil
}
