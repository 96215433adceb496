// Package store is the durable record of relief requests, requester devices,
// relief centres and staff accounts.
//
// Claim and Transition are the only writers of request status. Both are
// single conditional updates on one request, so concurrent calls on the same
// request serialize while calls on different requests never wait on each other.
package store

import (
	"context"
	"time"

	"relief-dispatch-api-server/internal/models"
)

// RequestFilter narrows ListRequests. Empty fields match everything.
type RequestFilter struct {
	CentreID string
	Status   models.Status
	Limit    int
}

// TransitionGuard is checked atomically with the status compare.
type TransitionGuard struct {
	// VolunteerID, when set, must equal the dispatch's volunteer.
	VolunteerID string
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.ReliefRequest) error
	GetRequest(ctx context.Context, id string) (*models.ReliefRequest, error)
	GetRequestByDispatch(ctx context.Context, dispatchID string) (*models.ReliefRequest, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]*models.ReliefRequest, error)
	// ActiveForVolunteer returns the ACCEPTED/IN_PROGRESS request held by the
	// volunteer, or ErrNotFound.
	ActiveForVolunteer(ctx context.Context, volunteerID string) (*models.ReliefRequest, error)
	// Claim moves a PENDING request without a dispatch to ACCEPTED and
	// attaches d. Errors: ErrNotFound, ErrAlreadyClaimed (dispatch exists),
	// ErrInvalidTransition (not PENDING), ErrVolunteerBusy.
	Claim(ctx context.Context, requestID string, d models.Dispatch, at time.Time) (*models.ReliefRequest, error)
	// Transition moves a request from `from` to `to`. Errors: ErrNotFound,
	// ErrNotAuthorized (guard failed), ErrInvalidTransition (status != from).
	Transition(ctx context.Context, requestID string, from, to models.Status, g TransitionGuard, by string, at time.Time) (*models.ReliefRequest, error)
	AddProof(ctx context.Context, dispatchID string, p models.DeliveryProof) error
}

type RequesterStore interface {
	// CreateRequester inserts a new device identity; ErrAlreadyExists if the
	// device id is taken.
	CreateRequester(ctx context.Context, r *models.Requester) error
	// UpdateRequester refreshes name and phone of an existing device.
	UpdateRequester(ctx context.Context, deviceID, fullName, phone string, at time.Time) (*models.Requester, error)
	GetRequester(ctx context.Context, deviceID string) (*models.Requester, error)
	// BumpTokenVersion revokes every device token issued so far.
	BumpTokenVersion(ctx context.Context, deviceID string) (*models.Requester, error)
}

type CentreStore interface {
	ListCentres(ctx context.Context) ([]models.ReliefCentre, error)
	GetCentre(ctx context.Context, id string) (*models.ReliefCentre, error)
	CreateCentre(ctx context.Context, c *models.ReliefCentre) error
	UpdateCentre(ctx context.Context, c *models.ReliefCentre) error
	DeleteCentre(ctx context.Context, id string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store bundles every repository the service needs.
type Store interface {
	RequestStore
	RequesterStore
	CentreStore
	UserStore
	Close(ctx context.Context) error
}

func activeVolunteer(to models.Status, d *models.Dispatch) *string {
	if d == nil || !to.Active() {
		return nil
	}
	id := d.Volunteer.ID
	return &id
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Mongo)(nil)
)
