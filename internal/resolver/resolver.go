// Package resolver answers "which relief centre is closest to this point and
// how do I get there" by combining the geo index with the routing gateway.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/routing"

	"golang.org/x/sync/errgroup"
)

const DefaultCandidates = 5

// CentreSource ranks active centres by straight-line distance.
type CentreSource interface {
	Candidates(p models.Coordinate, k int) []geo.Candidate
}

// Result is the nearest centre together with the route to it.
type Result struct {
	Centre            models.ReliefCentre `json:"relief_centre"`
	Route             *models.Route       `json:"route"`
	Distance          float64             `json:"distance"`
	Duration          float64             `json:"duration"`
	DistanceFormatted string              `json:"distance_formatted"`
	DurationFormatted string              `json:"duration_formatted"`
}

type Resolver struct {
	centres    CentreSource
	gateway    routing.Gateway
	candidates int
}

// New builds a resolver that routes at most `candidates` of the
// straight-line-closest centres per query.
func New(centres CentreSource, gateway routing.Gateway, candidates int) *Resolver {
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	return &Resolver{centres: centres, gateway: gateway, candidates: candidates}
}

// Nearest returns the active centre with the shortest routed distance from p.
// Equal routed distances resolve to the lowest centre id. Candidates the
// routing service reports as unreachable (routing.ErrNoRoute) are skipped.
// Any other routing failure makes the answer unknowable and fails the whole
// query with ErrRoutingUnavailable, as does having no routable candidate.
// It fails with ErrNoCentresAvailable when no active centre exists.
func (r *Resolver) Nearest(ctx context.Context, p models.Coordinate) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cands := r.centres.Candidates(p, r.candidates)
	if len(cands) == 0 {
		return nil, models.ErrNoCentresAvailable
	}

	routes := make([]*models.Route, len(cands))
	errs := make([]error, len(cands))
	var g errgroup.Group
	g.SetLimit(r.candidates)
	for i, cand := range cands {
		i, cand := i, cand
		g.Go(func() error {
			routes[i], errs[i] = r.gateway.Route(ctx, p, cand.Centre.Coordinate())
			if errs[i] != nil {
				logger.L().Warn("nearest_centre_route_failed", "centre_id", cand.Centre.ID, "err", errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil && !errors.Is(err, routing.ErrNoRoute) {
			return nil, fmt.Errorf("route to candidate %s: %w", cands[i].Centre.ID, asUnavailable(err))
		}
	}

	best := -1
	for i := range cands {
		if routes[i] == nil {
			continue
		}
		if best < 0 || routes[i].Distance < routes[best].Distance ||
			(routes[i].Distance == routes[best].Distance && cands[i].Centre.ID < cands[best].Centre.ID) {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("no route to any of %d candidate centres: %w", len(cands), firstErr(errs))
	}

	route := routes[best]
	return &Result{
		Centre:            cands[best].Centre,
		Route:             route,
		Distance:          route.Distance,
		Duration:          route.Duration,
		DistanceFormatted: route.DistanceFormatted,
		DurationFormatted: route.DurationFormatted,
	}, nil
}

// NearestByDistance picks the closest active centre by great-circle distance
// only. Used when the routing gateway is down but a centre must still be chosen.
func (r *Resolver) NearestByDistance(p models.Coordinate) (*geo.Candidate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cands := r.centres.Candidates(p, 1)
	if len(cands) == 0 {
		return nil, models.ErrNoCentresAvailable
	}
	return &cands[0], nil
}

// Route is a point-to-point query; either endpoint may be the volunteer or the requester.
func (r *Resolver) Route(ctx context.Context, from, to models.Coordinate) (*models.Route, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	return r.gateway.Route(ctx, from, to)
}

// asUnavailable keeps ErrRoutingUnavailable in the chain even if a gateway
// returned something else.
func asUnavailable(err error) error {
	if errors.Is(err, models.ErrRoutingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrRoutingUnavailable, err)
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return asUnavailable(err)
		}
	}
	return models.ErrRoutingUnavailable
}
