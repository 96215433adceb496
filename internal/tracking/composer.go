// Package tracking builds the requester-facing progress snapshot.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/metrics"
	"relief-dispatch-api-server/internal/models"
)

type RequestGetter interface {
	GetRequest(ctx context.Context, id string) (*models.ReliefRequest, error)
}

type PositionReader interface {
	ReadLatest(ctx context.Context, dispatchID string) (*models.Position, error)
}

type Router interface {
	Route(ctx context.Context, from, to models.Coordinate) (*models.Route, error)
}

// CentreLookup resolves a centre id to its current record.
type CentreLookup interface {
	Get(id string) (models.ReliefCentre, bool)
}

// VolunteerView is what a requester may see about their volunteer.
type VolunteerView struct {
	Name       string    `json:"name"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Snapshot is one poll's worth of tracking state. Volunteer and route
// fields are absent until a dispatch exists, and route fields are absent
// whenever routing failed (RouteUnavailable is then true).
type Snapshot struct {
	RequestID          string            `json:"request_id"`
	Status             models.Status     `json:"status"`
	ReliefCentreID     string            `json:"relief_centre_id"`
	ReliefCentreName   string            `json:"relief_centre_name,omitempty"`
	Location           models.Coordinate `json:"location"`
	Supplies           []string          `json:"supplies"`
	UrgencyLevel       int               `json:"urgency_level"`
	CreatedAt          time.Time         `json:"created_at"`
	DispatchID         string            `json:"dispatch_id,omitempty"`
	Volunteer          *VolunteerView    `json:"volunteer,omitempty"`
	VolunteerLocation  *models.Position  `json:"volunteer_location,omitempty"`
	LocationAgeSeconds *float64          `json:"location_age_seconds,omitempty"`
	Route              *models.Route     `json:"route,omitempty"`
	ETAMinutes         *float64          `json:"eta_minutes,omitempty"`
	RouteUnavailable   bool              `json:"route_unavailable,omitempty"`
}

type Composer struct {
	requests  RequestGetter
	positions PositionReader
	router    Router
	centres   CentreLookup
	now       func() time.Time
}

// NewComposer builds a composer. centres may be nil, in which case snapshots
// carry the centre id only.
func NewComposer(requests RequestGetter, positions PositionReader, router Router, centres CentreLookup) *Composer {
	return &Composer{requests: requests, positions: positions, router: router, centres: centres, now: time.Now}
}

// GetTracking returns the snapshot for a request if deviceID is the device
// that created it. Position and routing failures never fail the call.
func (c *Composer) GetTracking(ctx context.Context, requestID, deviceID string) (*Snapshot, error) {
	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if deviceID == "" || req.RequesterDeviceID != deviceID {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotAuthorized)
	}

	snap := &Snapshot{
		RequestID:      req.ID,
		Status:         req.Status,
		ReliefCentreID: req.ReliefCentreID,
		Location:       req.Location,
		Supplies:       req.Supplies,
		UrgencyLevel:   req.UrgencyLevel,
		CreatedAt:      req.CreatedAt,
	}
	if c.centres != nil {
		if centre, ok := c.centres.Get(req.ReliefCentreID); ok {
			snap.ReliefCentreName = centre.Name
		}
	}
	if req.Dispatch == nil {
		return snap, nil
	}

	snap.DispatchID = req.Dispatch.ID
	snap.Volunteer = &VolunteerView{Name: req.Dispatch.Volunteer.Name, AssignedAt: req.Dispatch.AssignedAt}

	pos, err := c.positions.ReadLatest(ctx, req.Dispatch.ID)
	switch {
	case errors.Is(err, models.ErrNoLocationYet):
		return snap, nil
	case err != nil:
		logger.L().Warn("tracking_position_unavailable", "request_id", req.ID, "dispatch_id", req.Dispatch.ID, "err", err)
		return snap, nil
	}
	snap.VolunteerLocation = pos
	age := math.Max(0, c.now().Sub(pos.UpdatedAt).Seconds())
	snap.LocationAgeSeconds = &age

	// Once delivered or cancelled there is nobody en route.
	if req.Status.Terminal() {
		return snap, nil
	}

	route, err := c.router.Route(ctx, pos.Coordinate(), req.Location)
	if err != nil {
		metrics.TrackingDegradedTotal.Inc()
		logger.L().Warn("tracking_degraded", "request_id", req.ID, "dispatch_id", req.Dispatch.ID, "err", err)
		snap.RouteUnavailable = true
		return snap, nil
	}
	eta := route.Duration / 60
	snap.Route = route
	snap.ETAMinutes = &eta
	return snap, nil
}
