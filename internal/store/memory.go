package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"relief-dispatch-api-server/internal/models"
)

// Memory is an in-process Store. Each request has its own lock; the map
// lock is only held for index lookups and inserts, never while a request
// lock is being acquired.
//
// Lock order: requestEntry.mu -> volMu -> mu.
type Memory struct {
	mu         sync.RWMutex
	requests   map[string]*requestEntry
	byDispatch map[string]string

	volMu  sync.Mutex
	active map[string]string // volunteer id -> request id

	metaMu     sync.RWMutex
	requesters map[string]*models.Requester
	centres    map[string]models.ReliefCentre
	users      map[string]*models.User
	emails     map[string]string
}

type requestEntry struct {
	mu  sync.Mutex
	req *models.ReliefRequest
}

func NewMemory() *Memory {
	return &Memory{
		requests:   make(map[string]*requestEntry),
		byDispatch: make(map[string]string),
		active:     make(map[string]string),
		requesters: make(map[string]*models.Requester),
		centres:    make(map[string]models.ReliefCentre),
		users:      make(map[string]*models.User),
		emails:     make(map[string]string),
	}
}

func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) entry(id string) *requestEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[id]
}

func (m *Memory) CreateRequest(_ context.Context, r *models.ReliefRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return fmt.Errorf("request %s: %w", r.ID, models.ErrAlreadyExists)
	}
	m.requests[r.ID] = &requestEntry{req: r.Clone()}
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*models.ReliefRequest, error) {
	e := m.entry(id)
	if e == nil {
		return nil, fmt.Errorf("request %s: %w", id, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Clone(), nil
}

func (m *Memory) GetRequestByDispatch(ctx context.Context, dispatchID string) (*models.ReliefRequest, error) {
	m.mu.RLock()
	id, ok := m.byDispatch[dispatchID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotFound)
	}
	return m.GetRequest(ctx, id)
}

func (m *Memory) ListRequests(_ context.Context, f RequestFilter) ([]*models.ReliefRequest, error) {
	m.mu.RLock()
	entries := make([]*requestEntry, 0, len(m.requests))
	for _, e := range m.requests {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*models.ReliefRequest, 0)
	for _, e := range entries {
		e.mu.Lock()
		r := e.req
		if (f.CentreID == "" || r.ReliefCentreID == f.CentreID) && (f.Status == "" || r.Status == f.Status) {
			out = append(out, r.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ActiveForVolunteer(ctx context.Context, volunteerID string) (*models.ReliefRequest, error) {
	m.volMu.Lock()
	id, ok := m.active[volunteerID]
	m.volMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("active dispatch for %s: %w", volunteerID, models.ErrNotFound)
	}
	return m.GetRequest(ctx, id)
}

func (m *Memory) Claim(_ context.Context, requestID string, d models.Dispatch, at time.Time) (*models.ReliefRequest, error) {
	e := m.entry(requestID)
	if e == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.req.Dispatch != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrAlreadyClaimed)
	}
	if e.req.Status != models.StatusPending {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, e.req.Status, models.ErrInvalidTransition)
	}

	vid := d.Volunteer.ID
	m.volMu.Lock()
	if other, busy := m.active[vid]; busy && other != requestID {
		m.volMu.Unlock()
		return nil, fmt.Errorf("volunteer %s holds %s: %w", vid, other, models.ErrVolunteerBusy)
	}
	m.active[vid] = requestID
	m.volMu.Unlock()

	dispatch := d
	e.req.Dispatch = &dispatch
	e.req.Status = models.StatusAccepted
	e.req.ActiveVolunteerID = activeVolunteer(models.StatusAccepted, &dispatch)
	e.req.History = append(e.req.History, models.StatusEntry{Status: models.StatusAccepted, By: vid, At: at})
	e.req.UpdatedAt = at

	m.mu.Lock()
	m.byDispatch[d.ID] = requestID
	m.mu.Unlock()

	return e.req.Clone(), nil
}

func (m *Memory) Transition(_ context.Context, requestID string, from, to models.Status, g TransitionGuard, by string, at time.Time) (*models.ReliefRequest, error) {
	e := m.entry(requestID)
	if e == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if g.VolunteerID != "" && (e.req.Dispatch == nil || e.req.Dispatch.Volunteer.ID != g.VolunteerID) {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotAuthorized)
	}
	if e.req.Status != from {
		return nil, fmt.Errorf("request %s is %s, not %s: %w", requestID, e.req.Status, from, models.ErrInvalidTransition)
	}

	if e.req.ActiveVolunteerID != nil && !to.Active() {
		vid := *e.req.ActiveVolunteerID
		m.volMu.Lock()
		if m.active[vid] == requestID {
			delete(m.active, vid)
		}
		m.volMu.Unlock()
	}
	e.req.Status = to
	e.req.ActiveVolunteerID = activeVolunteer(to, e.req.Dispatch)
	e.req.History = append(e.req.History, models.StatusEntry{Status: to, By: by, At: at})
	e.req.UpdatedAt = at
	return e.req.Clone(), nil
}

func (m *Memory) AddProof(ctx context.Context, dispatchID string, p models.DeliveryProof) error {
	m.mu.RLock()
	id, ok := m.byDispatch[dispatchID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNotFound)
	}
	e := m.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req.Dispatch.Proofs = append(e.req.Dispatch.Proofs, p)
	return nil
}

// --- requesters ---

func (m *Memory) CreateRequester(_ context.Context, r *models.Requester) error {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	if _, ok := m.requesters[r.DeviceID]; ok {
		return fmt.Errorf("requester %s: %w", r.DeviceID, models.ErrAlreadyExists)
	}
	cp := *r
	m.requesters[r.DeviceID] = &cp
	return nil
}

func (m *Memory) UpdateRequester(_ context.Context, deviceID, fullName, phone string, at time.Time) (*models.Requester, error) {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	r, ok := m.requesters[deviceID]
	if !ok {
		return nil, fmt.Errorf("requester %s: %w", deviceID, models.ErrNotFound)
	}
	r.FullName = fullName
	r.Phone = phone
	r.UpdatedAt = at
	cp := *r
	return &cp, nil
}

func (m *Memory) GetRequester(_ context.Context, deviceID string) (*models.Requester, error) {
	m.metaMu.RLock()
	defer m.metaMu.RUnlock()
	r, ok := m.requesters[deviceID]
	if !ok {
		return nil, fmt.Errorf("requester %s: %w", deviceID, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) BumpTokenVersion(_ context.Context, deviceID string) (*models.Requester, error) {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	r, ok := m.requesters[deviceID]
	if !ok {
		return nil, fmt.Errorf("requester %s: %w", deviceID, models.ErrNotFound)
	}
	r.TokenVersion++
	cp := *r
	return &cp, nil
}

// --- centres ---

func (m *Memory) ListCentres(context.Context) ([]models.ReliefCentre, error) {
	m.metaMu.RLock()
	out := make([]models.ReliefCentre, 0, len(m.centres))
	for _, c := range m.centres {
		out = append(out, c)
	}
	m.metaMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetCentre(_ context.Context, id string) (*models.ReliefCentre, error) {
	m.metaMu.RLock()
	defer m.metaMu.RUnlock()
	c, ok := m.centres[id]
	if !ok {
		return nil, fmt.Errorf("relief centre %s: %w", id, models.ErrNotFound)
	}
	return &c, nil
}

func (m *Memory) CreateCentre(_ context.Context, c *models.ReliefCentre) error {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	if _, ok := m.centres[c.ID]; ok {
		return fmt.Errorf("relief centre %s: %w", c.ID, models.ErrAlreadyExists)
	}
	m.centres[c.ID] = *c
	return nil
}

func (m *Memory) UpdateCentre(_ context.Context, c *models.ReliefCentre) error {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	old, ok := m.centres[c.ID]
	if !ok {
		return fmt.Errorf("relief centre %s: %w", c.ID, models.ErrNotFound)
	}
	c.CreatedAt = old.CreatedAt
	m.centres[c.ID] = *c
	return nil
}

func (m *Memory) DeleteCentre(_ context.Context, id string) error {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	if _, ok := m.centres[id]; !ok {
		return fmt.Errorf("relief centre %s: %w", id, models.ErrNotFound)
	}
	delete(m.centres, id)
	return nil
}

// --- users ---

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	email := strings.ToLower(u.Email)
	if _, ok := m.emails[email]; ok {
		return fmt.Errorf("user %s: %w", u.Email, models.ErrAlreadyExists)
	}
	cp := *u
	m.users[u.ID] = &cp
	m.emails[email] = u.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.metaMu.RLock()
	defer m.metaMu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.metaMu.RLock()
	id, ok := m.emails[strings.ToLower(email)]
	m.metaMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	return m.GetUser(ctx, id)
}
