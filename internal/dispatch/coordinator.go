// Package dispatch owns the relief request lifecycle: creation against the
// nearest centre, the single-volunteer claim, status progression and
// cancellation. Every status change goes through one conditional store
// update, so concurrent callers on the same request see exactly one winner.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/metrics"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/resolver"
	"relief-dispatch-api-server/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultUrgency = 3
	MinUrgency     = 1
	MaxUrgency     = 5
)

// Notification events.
const (
	EventRequestCreated = "request_created"
	EventRequestClaimed = "request_claimed"
	EventRequestStatus  = "request_status"

	// Sent only to the volunteer whose dispatch someone else cancelled.
	EventDispatchCancelled = "dispatch_cancelled"
)

// CentreResolver picks the centre a new request is tied to.
type CentreResolver interface {
	Nearest(ctx context.Context, p models.Coordinate) (*resolver.Result, error)
	NearestByDistance(p models.Coordinate) (*geo.Candidate, error)
}

// PositionCloser stops location pushes for a finished dispatch.
type PositionCloser interface {
	Close(ctx context.Context, dispatchID string) error
}

// Notifier fans lifecycle events out to connected staff clients.
type Notifier interface {
	Broadcast(event string, payload any)
	Send(userID, event string, payload any) error
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, any)          {}
func (nopNotifier) Send(string, string, any) error { return nil }

// ActorKind says who is asking for a cancellation.
type ActorKind string

const (
	ActorRequester ActorKind = "requester"
	ActorVolunteer ActorKind = "volunteer"
	ActorAdmin     ActorKind = "admin"
)

type Actor struct {
	Kind ActorKind
	ID   string
}

type CreateInput struct {
	Requester    *models.Requester
	Location     models.Coordinate
	Supplies     []string
	UrgencyLevel int
}

type CreateResult struct {
	Request        *models.ReliefRequest
	Centre         models.ReliefCentre
	Route          *models.Route
	RouteAvailable bool
}

type Coordinator struct {
	requests  store.RequestStore
	resolver  CentreResolver
	supplies  *models.SupplyCatalog
	positions PositionCloser
	notifier  Notifier
	now       func() time.Time
	newID     func() string
}

func New(requests store.RequestStore, res CentreResolver, supplies *models.SupplyCatalog, positions PositionCloser, notifier Notifier) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if supplies == nil {
		supplies = models.NewSupplyCatalog(nil)
	}
	return &Coordinator{
		requests:  requests,
		resolver:  res,
		supplies:  supplies,
		positions: positions,
		notifier:  notifier,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateRequest validates the input, resolves the nearest active centre and
// stores a PENDING request tied to it. If routing is down the great-circle
// nearest centre is used and RouteAvailable is false.
func (c *Coordinator) CreateRequest(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.Requester == nil || in.Requester.DeviceID == "" {
		return nil, fmt.Errorf("%w: requester device is required", models.ErrValidation)
	}
	if err := in.Location.Validate(); err != nil {
		return nil, err
	}
	supplies, err := c.supplies.Normalize(in.Supplies)
	if err != nil {
		return nil, err
	}
	urgency := in.UrgencyLevel
	if urgency == 0 {
		urgency = DefaultUrgency
	}
	if urgency < MinUrgency || urgency > MaxUrgency {
		return nil, fmt.Errorf("%w: urgency_level must be between %d and %d", models.ErrValidation, MinUrgency, MaxUrgency)
	}

	out := &CreateResult{}
	nearest, err := c.resolver.Nearest(ctx, in.Location)
	switch {
	case err == nil:
		out.Centre, out.Route, out.RouteAvailable = nearest.Centre, nearest.Route, true
	case errors.Is(err, models.ErrRoutingUnavailable):
		cand, ferr := c.resolver.NearestByDistance(in.Location)
		if ferr != nil {
			return nil, ferr
		}
		logger.L().Warn("create_request_route_fallback", "centre_id", cand.Centre.ID, "err", err)
		out.Centre = cand.Centre
	default:
		return nil, err
	}

	now := c.now().UTC()
	req := &models.ReliefRequest{
		ID:                c.newID(),
		RequesterDeviceID: in.Requester.DeviceID,
		RequesterName:     in.Requester.FullName,
		RequesterPhone:    in.Requester.Phone,
		Location:          in.Location,
		ReliefCentreID:    out.Centre.ID,
		Supplies:          supplies,
		UrgencyLevel:      urgency,
		Status:            models.StatusPending,
		History:           []models.StatusEntry{{Status: models.StatusPending, By: in.Requester.DeviceID, At: now}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.requests.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	out.Request = req

	metrics.RequestsCreatedTotal.Inc()
	logger.L().Info("request_created", "request_id", req.ID, "centre_id", req.ReliefCentreID, "urgency", urgency)
	c.notifier.Broadcast(EventRequestCreated, payload{
		"request_id":       req.ID,
		"relief_centre_id": req.ReliefCentreID,
		"urgency_level":    urgency,
		"supplies":         supplies,
	})
	return out, nil
}

// Accept claims a PENDING request for the volunteer. Exactly one of any
// number of concurrent calls on the same request succeeds; the others get
// ErrAlreadyClaimed.
func (c *Coordinator) Accept(ctx context.Context, requestID string, v models.Volunteer) (req *models.ReliefRequest, err error) {
	defer func() { metrics.ClaimsTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	if v.ID == "" {
		return nil, fmt.Errorf("%w: volunteer identity is required", models.ErrNotAuthorized)
	}
	now := c.now().UTC()
	d := models.Dispatch{ID: c.newID(), Volunteer: v, AssignedAt: now}
	req, err = c.requests.Claim(ctx, requestID, d, now)
	if err != nil {
		logger.L().Info("claim_lost", "request_id", requestID, "volunteer_id", v.ID, "err", err)
		return nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(models.StatusPending), string(models.StatusAccepted)).Inc()
	logger.L().Info("claim_won", "request_id", requestID, "dispatch_id", d.ID, "volunteer_id", v.ID)
	c.notifier.Broadcast(EventRequestClaimed, payload{
		"request_id":       req.ID,
		"relief_centre_id": req.ReliefCentreID,
		"dispatch_id":      d.ID,
		"volunteer_id":     v.ID,
	})
	return req, nil
}

// UpdateStatus applies a volunteer-driven transition. Only IN_PROGRESS and
// COMPLETED may be requested, and only by the dispatch's volunteer.
func (c *Coordinator) UpdateStatus(ctx context.Context, requestID, volunteerID string, target models.Status) (*models.ReliefRequest, error) {
	event, ok := models.EventFor(target)
	if !ok {
		return nil, fmt.Errorf("%w: volunteers may only set %s or %s", models.ErrInvalidTransition, models.StatusInProgress, models.StatusCompleted)
	}
	cur, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if cur.Dispatch == nil || cur.Dispatch.Volunteer.ID != volunteerID {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotAuthorized)
	}
	if _, err := models.Next(cur.Status, event); err != nil {
		return nil, err
	}
	return c.transition(ctx, cur, target, store.TransitionGuard{VolunteerID: volunteerID}, volunteerID)
}

func (c *Coordinator) Start(ctx context.Context, requestID, volunteerID string) (*models.ReliefRequest, error) {
	return c.UpdateStatus(ctx, requestID, volunteerID, models.StatusInProgress)
}

func (c *Coordinator) Complete(ctx context.Context, requestID, volunteerID string) (*models.ReliefRequest, error) {
	return c.UpdateStatus(ctx, requestID, volunteerID, models.StatusCompleted)
}

// Cancel ends a PENDING or ACCEPTED request. Requesters may cancel their own
// requests, the assigned volunteer may release an ACCEPTED one and admins
// may cancel any. IN_PROGRESS requests cannot be cancelled.
func (c *Coordinator) Cancel(ctx context.Context, requestID string, by Actor) (*models.ReliefRequest, error) {
	cur, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	var guard store.TransitionGuard
	switch by.Kind {
	case ActorAdmin:
	case ActorRequester:
		if cur.RequesterDeviceID != by.ID {
			return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotAuthorized)
		}
	case ActorVolunteer:
		if cur.Dispatch == nil || cur.Dispatch.Volunteer.ID != by.ID {
			return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotAuthorized)
		}
		guard.VolunteerID = by.ID
	default:
		return nil, fmt.Errorf("unknown actor %q: %w", by.Kind, models.ErrNotAuthorized)
	}
	if _, err := models.Next(cur.Status, models.EventCancel); err != nil {
		return nil, err
	}
	req, err := c.transition(ctx, cur, models.StatusCancelled, guard, string(by.Kind)+":"+by.ID)
	if err != nil {
		return nil, err
	}
	if req.Dispatch != nil && by.Kind != ActorVolunteer {
		if err := c.notifier.Send(req.Dispatch.Volunteer.ID, EventDispatchCancelled, payload{
			"request_id":  req.ID,
			"dispatch_id": req.Dispatch.ID,
			"by":          by.Kind,
		}); err != nil {
			logger.L().Warn("notify_volunteer_failed", "volunteer_id", req.Dispatch.Volunteer.ID, "err", err)
		}
	}
	return req, nil
}

func (c *Coordinator) transition(ctx context.Context, cur *models.ReliefRequest, to models.Status, g store.TransitionGuard, by string) (*models.ReliefRequest, error) {
	req, err := c.requests.Transition(ctx, cur.ID, cur.Status, to, g, by, c.now().UTC())
	if err != nil {
		logger.L().Info("transition_rejected", "request_id", cur.ID, "from", cur.Status, "to", to, "err", err)
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(string(cur.Status), string(to)).Inc()
	logger.L().Info("transition_applied", "request_id", req.ID, "from", cur.Status, "to", to, "by", by)

	if to.Terminal() && req.Dispatch != nil && c.positions != nil {
		// Pushes are refused by status even if this fails.
		_ = c.positions.Close(ctx, req.Dispatch.ID)
	}
	c.notifier.Broadcast(EventRequestStatus, payload{
		"request_id":       req.ID,
		"relief_centre_id": req.ReliefCentreID,
		"status":           req.Status,
	})
	return req, nil
}

// Get returns a request by id.
func (c *Coordinator) Get(ctx context.Context, requestID string) (*models.ReliefRequest, error) {
	return c.requests.GetRequest(ctx, requestID)
}

// GetByDispatch returns the request a dispatch serves.
func (c *Coordinator) GetByDispatch(ctx context.Context, dispatchID string) (*models.ReliefRequest, error) {
	return c.requests.GetRequestByDispatch(ctx, dispatchID)
}

// ActiveFor returns the volunteer's ACCEPTED or IN_PROGRESS request, or nil.
func (c *Coordinator) ActiveFor(ctx context.Context, volunteerID string) (*models.ReliefRequest, error) {
	req, err := c.requests.ActiveForVolunteer(ctx, volunteerID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return req, err
}

// ListForCentre lists a centre's requests newest first, optionally by status.
func (c *Coordinator) ListForCentre(ctx context.Context, centreID string, status models.Status) ([]*models.ReliefRequest, error) {
	return c.requests.ListRequests(ctx, store.RequestFilter{CentreID: centreID, Status: status})
}

// AddProof attaches a delivery photo to a dispatch held by the volunteer.
func (c *Coordinator) AddProof(ctx context.Context, dispatchID, volunteerID string, p models.DeliveryProof) error {
	req, err := c.requests.GetRequestByDispatch(ctx, dispatchID)
	if err != nil {
		return err
	}
	if req.Dispatch.Volunteer.ID != volunteerID {
		return fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotAuthorized)
	}
	if req.Status == models.StatusCancelled {
		return fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrDispatchClosed)
	}
	return c.requests.AddProof(ctx, dispatchID, p)
}

type payload = map[string]any
