// Package location carries volunteer positions from the pushing client to
// tracking readers. Each dispatch has its own mailbox holding only the
// latest position, so pushes on unrelated dispatches never contend.
package location

import (
	"context"
	"fmt"
	"sync"

	"relief-dispatch-api-server/internal/models"
)

// Mailbox stores the latest position per dispatch.
type Mailbox interface {
	// Put overwrites the stored position. It fails with ErrDispatchClosed
	// once Close has been called for the dispatch.
	Put(ctx context.Context, dispatchID string, p models.Position) error
	// Latest returns the stored position or ErrNoLocationYet.
	Latest(ctx context.Context, dispatchID string) (*models.Position, error)
	// Close rejects further Puts. The last position stays readable.
	Close(ctx context.Context, dispatchID string) error
}

type slot struct {
	mu     sync.Mutex
	pos    *models.Position
	closed bool
}

// MemoryMailbox keeps one slot per dispatch in process memory.
type MemoryMailbox struct {
	slots sync.Map // dispatch id -> *slot
}

func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{}
}

func (m *MemoryMailbox) slot(dispatchID string) *slot {
	s, _ := m.slots.LoadOrStore(dispatchID, &slot{})
	return s.(*slot)
}

func (m *MemoryMailbox) Put(_ context.Context, dispatchID string, p models.Position) error {
	s := m.slot(dispatchID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrDispatchClosed)
	}
	s.pos = &p
	return nil
}

func (m *MemoryMailbox) Latest(_ context.Context, dispatchID string) (*models.Position, error) {
	v, ok := m.slots.Load(dispatchID)
	if !ok {
		return nil, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNoLocationYet)
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return nil, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNoLocationYet)
	}
	p := *s.pos
	return &p, nil
}

func (m *MemoryMailbox) Close(_ context.Context, dispatchID string) error {
	s := m.slot(dispatchID)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
