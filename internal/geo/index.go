// Package geo keeps relief-centre locations in memory and answers
// nearest-centre queries by great-circle distance.
package geo

import (
	"sort"
	"sync"

	"relief-dispatch-api-server/internal/models"
)

// Candidate is a centre ranked by straight-line distance from a query point.
type Candidate struct {
	Centre     models.ReliefCentre
	DistanceKm float64
}

// Index is safe for concurrent use. Writers come from admin edits and
// periodic reloads; readers from every nearest-centre query.
type Index struct {
	mu      sync.RWMutex
	centres map[string]models.ReliefCentre
}

func NewIndex(centres ...models.ReliefCentre) *Index {
	idx := &Index{centres: make(map[string]models.ReliefCentre, len(centres))}
	idx.Replace(centres)
	return idx
}

// Replace swaps the whole centre set.
func (i *Index) Replace(centres []models.ReliefCentre) {
	next := make(map[string]models.ReliefCentre, len(centres))
	for _, c := range centres {
		next[c.ID] = c
	}
	i.mu.Lock()
	i.centres = next
	i.mu.Unlock()
}

func (i *Index) Upsert(c models.ReliefCentre) {
	i.mu.Lock()
	i.centres[c.ID] = c
	i.mu.Unlock()
}

func (i *Index) Remove(id string) {
	i.mu.Lock()
	delete(i.centres, id)
	i.mu.Unlock()
}

func (i *Index) Get(id string) (models.ReliefCentre, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	c, ok := i.centres[id]
	return c, ok
}

// Active returns the active centres ordered by id.
func (i *Index) Active() []models.ReliefCentre {
	i.mu.RLock()
	out := make([]models.ReliefCentre, 0, len(i.centres))
	for _, c := range i.centres {
		if c.IsActive() {
			out = append(out, c)
		}
	}
	i.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Candidates returns up to k active centres closest to p, nearest first.
// Equal distances order by centre id so the ranking is stable.
func (i *Index) Candidates(p models.Coordinate, k int) []Candidate {
	active := i.Active()
	out := make([]Candidate, 0, len(active))
	for _, c := range active {
		out = append(out, Candidate{
			Centre:     c,
			DistanceKm: Haversine(p.Latitude, p.Longitude, c.Latitude, c.Longitude),
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].DistanceKm != out[b].DistanceKm {
			return out[a].DistanceKm < out[b].DistanceKm
		}
		return out[a].Centre.ID < out[b].Centre.ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
