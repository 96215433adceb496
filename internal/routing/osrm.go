// Package routing talks to the external OSRM-style routing service. The core
// only consumes distance, duration and polyline between two points.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/metrics"
	"relief-dispatch-api-server/internal/models"
)

// Gateway computes a route between two points. Implementations must treat
// both endpoints the same way so callers can route in either direction.
type Gateway interface {
	Route(ctx context.Context, from, to models.Coordinate) (*models.Route, error)
}

const DefaultTimeout = 5 * time.Second

// ErrNoRoute means the routing service answered but found no path between
// the points. It always wraps models.ErrRoutingUnavailable.
var ErrNoRoute = errors.New("no route between points")

// OSRMClient calls the OSRM HTTP route service.
type OSRMClient struct {
	baseURL string
	profile string
	timeout time.Duration
	client  *http.Client
}

// NewOSRMClient builds a client. A nil http client gets a shared default;
// a non-positive timeout falls back to DefaultTimeout. Every call is bounded
// by the timeout, so a hung routing server never blocks the caller.
func NewOSRMClient(baseURL, profile string, timeout time.Duration, client *http.Client) *OSRMClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if profile == "" {
		profile = "driving"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OSRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: profile,
		timeout: timeout,
		client:  client,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the driving route from -> to. Any transport failure, timeout,
// non-200 answer or empty route set is reported as ErrRoutingUnavailable;
// an answer saying the points are not connected also matches ErrNoRoute.
func (c *OSRMClient) Route(ctx context.Context, from, to models.Coordinate) (*models.Route, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/route/v1/%s/%s;%s?%s",
		c.baseURL, url.PathEscape(c.profile), lngLat(from), lngLat(to),
		url.Values{"overview": {"full"}, "geometries": {"geojson"}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRoutingUnavailable, err)
	}

	t0 := time.Now()
	metrics.RoutingRequestsTotal.Inc()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RoutingFailTotal.Inc()
		logger.L().Warn("routing_http_error", "err", err)
		return nil, fmt.Errorf("%w: %v", models.ErrRoutingUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.RoutingDurationMs.Observe(float64(time.Since(t0).Milliseconds()))

	// OSRM answers NoRoute/NoSegment with a 400 and a JSON body.
	var r osrmResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&r)
	if decodeErr == nil && noRoute(r) {
		metrics.RoutingFailTotal.Inc()
		logger.L().Info("routing_no_route", "code", r.Code, "message", r.Message)
		return nil, fmt.Errorf("%w: %w: code %q", models.ErrRoutingUnavailable, ErrNoRoute, r.Code)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RoutingFailTotal.Inc()
		logger.L().Warn("routing_bad_status", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", models.ErrRoutingUnavailable, resp.StatusCode)
	}
	if decodeErr != nil {
		metrics.RoutingFailTotal.Inc()
		logger.L().Warn("routing_decode_error", "err", decodeErr)
		return nil, fmt.Errorf("%w: decode: %v", models.ErrRoutingUnavailable, decodeErr)
	}
	if r.Code != "Ok" {
		metrics.RoutingFailTotal.Inc()
		logger.L().Warn("routing_bad_code", "code", r.Code, "message", r.Message)
		return nil, fmt.Errorf("%w: code %q", models.ErrRoutingUnavailable, r.Code)
	}

	best := r.Routes[0]
	route := NewRoute(best.Distance, best.Duration, best.Geometry.Coordinates, from, to)
	logger.L().Debug("routing_ok", "distance", route.Distance, "duration", route.Duration,
		"duration_ms", time.Since(t0).Milliseconds())
	return route, nil
}

// NewRoute fills the derived fields of a route. Start/End come from the
// polyline when present, otherwise from the requested endpoints.
func NewRoute(distance, duration float64, coords [][2]float64, from, to models.Coordinate) *models.Route {
	r := &models.Route{
		Distance:          distance,
		Duration:          duration,
		DistanceKm:        round(distance/1000, 2),
		DurationMin:       round(duration/60, 1),
		DistanceFormatted: FormatDistance(distance),
		DurationFormatted: FormatDuration(duration),
		Start:             models.LatLng{Lat: from.Latitude, Lng: from.Longitude},
		End:               models.LatLng{Lat: to.Latitude, Lng: to.Longitude},
		Coordinates:       coords,
	}
	if r.Coordinates == nil {
		r.Coordinates = [][2]float64{}
	}
	if n := len(coords); n > 0 {
		r.Start = models.LatLng{Lat: coords[0][1], Lng: coords[0][0]}
		r.End = models.LatLng{Lat: coords[n-1][1], Lng: coords[n-1][0]}
	}
	return r
}

func noRoute(r osrmResponse) bool {
	switch r.Code {
	case "NoRoute", "NoSegment":
		return true
	case "Ok":
		return len(r.Routes) == 0
	}
	return false
}

// OSRM wants lng,lat.
func lngLat(c models.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Longitude, c.Latitude)
}
