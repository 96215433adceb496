package location

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func pos(lat, lng float64) models.Position {
	return models.Position{Latitude: lat, Longitude: lng, UpdatedAt: t0}
}

func TestMemoryMailbox(t *testing.T) {
	runMailboxSuite(t, func(t *testing.T) Mailbox { return NewMemoryMailbox() })
}

func TestRedisMailbox(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	runMailboxSuite(t, func(t *testing.T) Mailbox {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = rdb.Close() })
		m := NewRedisMailbox(rdb, time.Minute)
		m.prefix = "relief:test:" + uuid.NewString()[:8] + ":"
		return m
	})
}

func runMailboxSuite(t *testing.T, newBox func(t *testing.T) Mailbox) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		box := newBox(t)
		_, err := box.Latest(ctx, "d1")
		assert.ErrorIs(t, err, models.ErrNoLocationYet)
	})

	t.Run("last write wins", func(t *testing.T) {
		box := newBox(t)
		require.NoError(t, box.Put(ctx, "d1", pos(12.70, 79.97)))
		require.NoError(t, box.Put(ctx, "d1", pos(12.701, 79.971)))

		got, err := box.Latest(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 12.701, got.Latitude)
		assert.Equal(t, 79.971, got.Longitude)
	})

	t.Run("closed rejects but keeps last", func(t *testing.T) {
		box := newBox(t)
		require.NoError(t, box.Put(ctx, "d1", pos(1, 2)))
		require.NoError(t, box.Close(ctx, "d1"))

		assert.ErrorIs(t, box.Put(ctx, "d1", pos(3, 4)), models.ErrDispatchClosed)
		got, err := box.Latest(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 1.0, got.Latitude)
	})

	t.Run("dispatches are independent", func(t *testing.T) {
		box := newBox(t)
		require.NoError(t, box.Close(ctx, "d1"))
		assert.NoError(t, box.Put(ctx, "d2", pos(5, 6)))
	})
}

func TestMemoryMailboxConcurrentPushes(t *testing.T) {
	ctx := context.Background()
	box := NewMemoryMailbox()

	var wg sync.WaitGroup
	for d := 0; d < 8; d++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(d, i int) {
				defer wg.Done()
				_ = box.Put(ctx, fmt.Sprintf("d%d", d), pos(float64(i)/100, 0))
				_, _ = box.Latest(ctx, fmt.Sprintf("d%d", d))
			}(d, i)
		}
	}
	wg.Wait()

	for d := 0; d < 8; d++ {
		_, err := box.Latest(ctx, fmt.Sprintf("d%d", d))
		assert.NoError(t, err)
	}
}

type fixture struct {
	store    *store.Memory
	channel  *Channel
	dispatch string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.CreateRequest(ctx, &models.ReliefRequest{
		ID:        "r1",
		Location:  models.Coordinate{Latitude: 12.70, Longitude: 79.97},
		Supplies:  []string{"food"},
		Status:    models.StatusPending,
		CreatedAt: t0,
	}))
	claimed, err := s.Claim(ctx, "r1", models.Dispatch{
		ID:        "d1",
		Volunteer: models.Volunteer{ID: "vol-a", Name: "Volunteer A"},
	}, t0)
	require.NoError(t, err)

	ch := NewChannel(s, NewMemoryMailbox())
	ch.now = func() time.Time { return t0.Add(time.Minute) }
	return &fixture{store: s, channel: ch, dispatch: claimed.Dispatch.ID}
}

func (f *fixture) move(t *testing.T, from, to models.Status) {
	t.Helper()
	_, err := f.store.Transition(context.Background(), "r1", from, to, store.TransitionGuard{}, "test", t0)
	require.NoError(t, err)
}

func TestPushRejectedBeforeStart(t *testing.T) {
	f := newFixture(t)
	_, err := f.channel.PushLocation(context.Background(), f.dispatch, "vol-a", models.Coordinate{Latitude: 12.701, Longitude: 79.971})
	assert.ErrorIs(t, err, models.ErrNotInProgress)
}

func TestPushWhileInProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.move(t, models.StatusAccepted, models.StatusInProgress)

	_, err := f.channel.ReadLatest(ctx, f.dispatch)
	assert.ErrorIs(t, err, models.ErrNoLocationYet)

	p, err := f.channel.PushLocation(ctx, f.dispatch, "vol-a", models.Coordinate{Latitude: 12.701, Longitude: 79.971})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), p.UpdatedAt)

	got, err := f.channel.ReadLatest(ctx, f.dispatch)
	require.NoError(t, err)
	assert.Equal(t, *p, *got)
}

func TestPushByOtherVolunteer(t *testing.T) {
	f := newFixture(t)
	f.move(t, models.StatusAccepted, models.StatusInProgress)
	_, err := f.channel.PushLocation(context.Background(), f.dispatch, "vol-b", models.Coordinate{Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestPushAfterComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.move(t, models.StatusAccepted, models.StatusInProgress)
	_, err := f.channel.PushLocation(ctx, f.dispatch, "vol-a", models.Coordinate{Latitude: 12.701, Longitude: 79.971})
	require.NoError(t, err)

	f.move(t, models.StatusInProgress, models.StatusCompleted)
	require.NoError(t, f.channel.Close(ctx, f.dispatch))

	_, err = f.channel.PushLocation(ctx, f.dispatch, "vol-a", models.Coordinate{Latitude: 12.8, Longitude: 80})
	assert.ErrorIs(t, err, models.ErrDispatchClosed)

	got, err := f.channel.ReadLatest(ctx, f.dispatch)
	require.NoError(t, err)
	assert.Equal(t, 12.701, got.Latitude)
}

func TestClosedMailboxWinsOverStaleStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.move(t, models.StatusAccepted, models.StatusInProgress)
	require.NoError(t, f.channel.Close(ctx, f.dispatch))

	_, err := f.channel.PushLocation(ctx, f.dispatch, "vol-a", models.Coordinate{Latitude: 12.8, Longitude: 80})
	assert.ErrorIs(t, err, models.ErrDispatchClosed)
}

func TestPushValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.channel.PushLocation(context.Background(), f.dispatch, "vol-a", models.Coordinate{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.channel.PushLocation(context.Background(), "unknown", "vol-a", models.Coordinate{Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
