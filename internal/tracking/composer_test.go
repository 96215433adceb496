package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/location"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/routing"
	"relief-dispatch-api-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	victim = models.Coordinate{Latitude: 12.70, Longitude: 79.97}
)

// fakeRouter records every origin it routes from.
type fakeRouter struct {
	down  bool
	calls []models.Coordinate
}

func (f *fakeRouter) Route(_ context.Context, from, to models.Coordinate) (*models.Route, error) {
	f.calls = append(f.calls, from)
	if f.down {
		return nil, models.ErrRoutingUnavailable
	}
	return routing.NewRoute(1200, 240, nil, from, to), nil
}

type fixture struct {
	store    *store.Memory
	channel  *location.Channel
	router   *fakeRouter
	composer *Composer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemory()
	require.NoError(t, s.CreateRequest(context.Background(), &models.ReliefRequest{
		ID:                "r1",
		RequesterDeviceID: "dev-1",
		Location:          victim,
		ReliefCentreID:    "c1",
		Supplies:          []string{"food"},
		UrgencyLevel:      3,
		Status:            models.StatusPending,
		CreatedAt:         t0,
	}))
	ch := location.NewChannel(s, location.NewMemoryMailbox())
	r := &fakeRouter{}
	centres := geo.NewIndex(models.ReliefCentre{ID: "c1", Name: "Guduvancherry Central", Latitude: 12.69, Longitude: 79.97, Status: models.CentreActive})
	c := NewComposer(s, ch, r, centres)
	c.now = func() time.Time { return t0.Add(10 * time.Minute) }
	return &fixture{store: s, channel: ch, router: r, composer: c}
}

func (f *fixture) accept(t *testing.T) string {
	t.Helper()
	req, err := f.store.Claim(context.Background(), "r1", models.Dispatch{
		ID:         "d1",
		Volunteer:  models.Volunteer{ID: "vol-a", Name: "Volunteer A"},
		AssignedAt: t0,
	}, t0)
	require.NoError(t, err)
	return req.Dispatch.ID
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	_, err := f.store.Transition(context.Background(), "r1", models.StatusAccepted, models.StatusInProgress, store.TransitionGuard{}, "vol-a", t0)
	require.NoError(t, err)
}

func TestPendingHasNoVolunteerFields(t *testing.T) {
	f := newFixture(t)
	snap, err := f.composer.GetTracking(context.Background(), "r1", "dev-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, snap.Status)
	assert.Equal(t, "c1", snap.ReliefCentreID)
	assert.Equal(t, "Guduvancherry Central", snap.ReliefCentreName)
	assert.Nil(t, snap.Volunteer)
	assert.Nil(t, snap.VolunteerLocation)
	assert.Nil(t, snap.Route)
	assert.Nil(t, snap.ETAMinutes)
	assert.Empty(t, f.router.calls)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	for _, key := range []string{"volunteer", "volunteer_location", "route", "eta_minutes", "dispatch_id"} {
		assert.NotContains(t, string(raw), `"`+key+`"`)
	}
}

func TestWrongDevice(t *testing.T) {
	f := newFixture(t)
	_, err := f.composer.GetTracking(context.Background(), "r1", "dev-2")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = f.composer.GetTracking(context.Background(), "missing", "dev-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAcceptedShowsVolunteerWithoutPosition(t *testing.T) {
	f := newFixture(t)
	f.accept(t)

	snap, err := f.composer.GetTracking(context.Background(), "r1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, snap.Status)
	require.NotNil(t, snap.Volunteer)
	assert.Equal(t, "Volunteer A", snap.Volunteer.Name)
	assert.Nil(t, snap.VolunteerLocation)
	assert.Nil(t, snap.Route)
}

func TestETAFollowsLatestPush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dispatchID := f.accept(t)
	f.start(t)

	f.channel.SetClock(func() time.Time { return t0.Add(9 * time.Minute) })
	_, err := f.channel.PushLocation(ctx, dispatchID, "vol-a", models.Coordinate{Latitude: 12.69, Longitude: 79.96})
	require.NoError(t, err)
	_, err = f.channel.PushLocation(ctx, dispatchID, "vol-a", models.Coordinate{Latitude: 12.701, Longitude: 79.971})
	require.NoError(t, err)

	snap, err := f.composer.GetTracking(ctx, "r1", "dev-1")
	require.NoError(t, err)
	require.NotNil(t, snap.VolunteerLocation)
	assert.Equal(t, 12.701, snap.VolunteerLocation.Latitude)
	require.NotNil(t, snap.LocationAgeSeconds)
	assert.Equal(t, 60.0, *snap.LocationAgeSeconds)

	require.Len(t, f.router.calls, 1)
	assert.Equal(t, models.Coordinate{Latitude: 12.701, Longitude: 79.971}, f.router.calls[0])
	require.NotNil(t, snap.Route)
	assert.Equal(t, models.LatLng{Lat: 12.701, Lng: 79.971}, snap.Route.Start)
	assert.Equal(t, models.LatLng{Lat: victim.Latitude, Lng: victim.Longitude}, snap.Route.End)
	require.NotNil(t, snap.ETAMinutes)
	assert.Equal(t, 4.0, *snap.ETAMinutes)
	assert.False(t, snap.RouteUnavailable)
}

func TestRoutingOutageDegrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dispatchID := f.accept(t)
	f.start(t)
	_, err := f.channel.PushLocation(ctx, dispatchID, "vol-a", models.Coordinate{Latitude: 12.701, Longitude: 79.971})
	require.NoError(t, err)
	f.router.down = true

	snap, err := f.composer.GetTracking(ctx, "r1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, snap.Status)
	require.NotNil(t, snap.VolunteerLocation)
	assert.Equal(t, 12.701, snap.VolunteerLocation.Latitude)
	assert.Nil(t, snap.Route)
	assert.Nil(t, snap.ETAMinutes)
	assert.True(t, snap.RouteUnavailable)
}

func TestCompletedSkipsRoute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dispatchID := f.accept(t)
	f.start(t)
	_, err := f.channel.PushLocation(ctx, dispatchID, "vol-a", victim)
	require.NoError(t, err)
	_, err = f.store.Transition(ctx, "r1", models.StatusInProgress, models.StatusCompleted, store.TransitionGuard{}, "vol-a", t0)
	require.NoError(t, err)

	snap, err := f.composer.GetTracking(ctx, "r1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, snap.Status)
	assert.NotNil(t, snap.VolunteerLocation)
	assert.Nil(t, snap.Route)
	assert.Empty(t, f.router.calls)
}

func TestUnknownCentreKeepsIDOnly(t *testing.T) {
	f := newFixture(t)
	f.composer.centres = geo.NewIndex()

	snap, err := f.composer.GetTracking(context.Background(), "r1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", snap.ReliefCentreID)
	assert.Empty(t, snap.ReliefCentreName)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"relief_centre_name"`)
}
