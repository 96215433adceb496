package location

import (
	"context"
	"fmt"
	"time"

	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/metrics"
	"relief-dispatch-api-server/internal/models"
)

// DispatchLookup resolves a dispatch to the request it serves.
type DispatchLookup interface {
	GetRequestByDispatch(ctx context.Context, dispatchID string) (*models.ReliefRequest, error)
}

// Channel gates pushes on the owning request's status and ownership, then
// hands them to the mailbox.
type Channel struct {
	requests DispatchLookup
	box      Mailbox
	now      func() time.Time
}

func NewChannel(requests DispatchLookup, box Mailbox) *Channel {
	return &Channel{requests: requests, box: box, now: time.Now}
}

// SetClock replaces the timestamp source for pushes.
func (c *Channel) SetClock(now func() time.Time) { c.now = now }

// PushLocation records the volunteer's position. volunteerID, when not
// empty, must be the volunteer on the dispatch.
func (c *Channel) PushLocation(ctx context.Context, dispatchID, volunteerID string, at models.Coordinate) (pos *models.Position, err error) {
	defer func() { metrics.LocationPushesTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	if err := at.Validate(); err != nil {
		return nil, err
	}
	req, err := c.requests.GetRequestByDispatch(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	if volunteerID != "" && req.Dispatch.Volunteer.ID != volunteerID {
		return nil, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotAuthorized)
	}
	switch req.Status {
	case models.StatusInProgress:
	case models.StatusCompleted, models.StatusCancelled:
		return nil, fmt.Errorf("dispatch %s is %s: %w", dispatchID, req.Status, models.ErrDispatchClosed)
	default:
		return nil, fmt.Errorf("dispatch %s is %s: %w", dispatchID, req.Status, models.ErrNotInProgress)
	}

	p := models.Position{Latitude: at.Latitude, Longitude: at.Longitude, UpdatedAt: c.now().UTC()}
	if err := c.box.Put(ctx, dispatchID, p); err != nil {
		return nil, err
	}
	logger.L().Debug("location_push", "dispatch_id", dispatchID, "lat", p.Latitude, "lng", p.Longitude)
	return &p, nil
}

// ReadLatest returns the last pushed position or ErrNoLocationYet.
func (c *Channel) ReadLatest(ctx context.Context, dispatchID string) (*models.Position, error) {
	return c.box.Latest(ctx, dispatchID)
}

// Close stops accepting pushes for a dispatch.
func (c *Channel) Close(ctx context.Context, dispatchID string) error {
	if err := c.box.Close(ctx, dispatchID); err != nil {
		logger.L().Warn("location_close_failed", "dispatch_id", dispatchID, "err", err)
		return err
	}
	return nil
}
