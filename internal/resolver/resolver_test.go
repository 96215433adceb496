package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/routing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway returns routes whose distance is looked up by destination.
type fakeGateway struct {
	mu       sync.Mutex
	distance map[models.Coordinate]float64
	fail     map[models.Coordinate]bool
	noRoute  map[models.Coordinate]bool
	calls    int
}

func (f *fakeGateway) Route(_ context.Context, from, to models.Coordinate) (*models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[to] {
		return nil, models.ErrRoutingUnavailable
	}
	if f.noRoute[to] {
		return nil, fmt.Errorf("%w: %w", models.ErrRoutingUnavailable, routing.ErrNoRoute)
	}
	d, ok := f.distance[to]
	if !ok {
		d = 1000
	}
	return routing.NewRoute(d, d/10, nil, from, to), nil
}

func centre(id string, lat, lng float64) models.ReliefCentre {
	return models.ReliefCentre{ID: id, Name: id, Latitude: lat, Longitude: lng, Status: models.CentreActive}
}

var victim = models.Coordinate{Latitude: 12.70, Longitude: 79.97}

func TestNearest_PicksShortestRoutedDistance(t *testing.T) {
	a := centre("a", 12.71, 79.97) // straight-line closest
	b := centre("b", 12.73, 79.97)
	gw := &fakeGateway{distance: map[models.Coordinate]float64{
		a.Coordinate(): 9000, // river in the way
		b.Coordinate(): 4000,
	}}
	r := New(geo.NewIndex(a, b), gw, 5)

	res, err := r.Nearest(context.Background(), victim)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Centre.ID)
	assert.Equal(t, 4000.0, res.Distance)
	assert.Equal(t, "4.0 km", res.DistanceFormatted)
	assert.NotNil(t, res.Route)
}

func TestNearest_TieBreakIsDeterministic(t *testing.T) {
	a := centre("c-2", 12.72, 79.97)
	b := centre("c-1", 12.75, 79.97)
	gw := &fakeGateway{distance: map[models.Coordinate]float64{
		a.Coordinate(): 5000,
		b.Coordinate(): 5000,
	}}
	r := New(geo.NewIndex(a, b), gw, 5)
	for i := 0; i < 25; i++ {
		res, err := r.Nearest(context.Background(), victim)
		require.NoError(t, err)
		assert.Equal(t, "c-1", res.Centre.ID)
	}
}

func TestNearest_OnlyRoutesTopCandidates(t *testing.T) {
	var cs []models.ReliefCentre
	for i, lat := range []float64{12.71, 12.72, 12.73, 12.74, 12.75, 12.76, 12.77} {
		cs = append(cs, centre(string(rune('a'+i)), lat, 79.97))
	}
	gw := &fakeGateway{}
	r := New(geo.NewIndex(cs...), gw, 3)

	_, err := r.Nearest(context.Background(), victim)
	require.NoError(t, err)
	assert.Equal(t, 3, gw.calls)
}

func TestNearest_SkipsCandidatesWithNoRoute(t *testing.T) {
	a := centre("a", 12.71, 79.97) // across the water
	b := centre("b", 12.73, 79.97)
	gw := &fakeGateway{noRoute: map[models.Coordinate]bool{a.Coordinate(): true}}
	r := New(geo.NewIndex(a, b), gw, 5)

	res, err := r.Nearest(context.Background(), victim)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Centre.ID)
}

func TestNearest_GatewayFailureDoesNotPickAnotherCentre(t *testing.T) {
	a := centre("a", 12.71, 79.97)
	b := centre("b", 12.80, 79.97)
	gw := &fakeGateway{distance: map[models.Coordinate]float64{
		a.Coordinate(): 1500,
		b.Coordinate(): 12000,
	}}
	r := New(geo.NewIndex(a, b), gw, 5)

	res, err := r.Nearest(context.Background(), victim)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Centre.ID)

	gw.mu.Lock()
	gw.fail = map[models.Coordinate]bool{a.Coordinate(): true}
	gw.mu.Unlock()
	res, err = r.Nearest(context.Background(), victim)
	assert.ErrorIs(t, err, models.ErrRoutingUnavailable)
	assert.Nil(t, res)

	// Same for a farther candidate.
	gw.mu.Lock()
	gw.fail = map[models.Coordinate]bool{b.Coordinate(): true}
	gw.mu.Unlock()
	_, err = r.Nearest(context.Background(), victim)
	assert.ErrorIs(t, err, models.ErrRoutingUnavailable)
}

func TestNearest_NoRouteAnywhereIsRoutingUnavailable(t *testing.T) {
	a := centre("a", 12.71, 79.97)
	gw := &fakeGateway{noRoute: map[models.Coordinate]bool{a.Coordinate(): true}}
	_, err := New(geo.NewIndex(a), gw, 5).Nearest(context.Background(), victim)
	assert.ErrorIs(t, err, models.ErrRoutingUnavailable)
	assert.ErrorIs(t, err, routing.ErrNoRoute)
}

func TestNearest_ErrorsAreDistinguishable(t *testing.T) {
	_, err := New(geo.NewIndex(), &fakeGateway{}, 5).Nearest(context.Background(), victim)
	assert.ErrorIs(t, err, models.ErrNoCentresAvailable)
	assert.False(t, errors.Is(err, models.ErrRoutingUnavailable))

	inactive := centre("x", 12.71, 79.97)
	inactive.Status = models.CentreInactive
	_, err = New(geo.NewIndex(inactive), &fakeGateway{}, 5).Nearest(context.Background(), victim)
	assert.ErrorIs(t, err, models.ErrNoCentresAvailable)

	a := centre("a", 12.71, 79.97)
	gw := &fakeGateway{fail: map[models.Coordinate]bool{a.Coordinate(): true}}
	_, err = New(geo.NewIndex(a), gw, 5).Nearest(context.Background(), victim)
	assert.ErrorIs(t, err, models.ErrRoutingUnavailable)
	assert.False(t, errors.Is(err, models.ErrNoCentresAvailable))
}

func TestNearest_InvalidCoordinate(t *testing.T) {
	_, err := New(geo.NewIndex(centre("a", 1, 1)), &fakeGateway{}, 5).
		Nearest(context.Background(), models.Coordinate{Latitude: -91})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNearestByDistance(t *testing.T) {
	r := New(geo.NewIndex(centre("near", 12.71, 79.97), centre("far", 13.5, 80.2)), &fakeGateway{}, 5)
	c, err := r.NearestByDistance(victim)
	require.NoError(t, err)
	assert.Equal(t, "near", c.Centre.ID)

	_, err = New(geo.NewIndex(), &fakeGateway{}, 5).NearestByDistance(victim)
	assert.ErrorIs(t, err, models.ErrNoCentresAvailable)
}

func TestRoute_IsSymmetricInEndpoints(t *testing.T) {
	gw := &fakeGateway{}
	r := New(geo.NewIndex(), gw, 5)
	there, err := r.Route(context.Background(), victim, models.Coordinate{Latitude: 12.8, Longitude: 80})
	require.NoError(t, err)
	back, err := r.Route(context.Background(), models.Coordinate{Latitude: 12.8, Longitude: 80}, victim)
	require.NoError(t, err)
	assert.Equal(t, there.Start, back.End)
	assert.Equal(t, there.End, back.Start)
}
