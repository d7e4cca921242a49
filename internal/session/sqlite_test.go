package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvestlink/internal/db"
	"harvestlink/internal/domain"
	"harvestlink/internal/migrate"
	"harvestlink/internal/session"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSQLiteStore(t *testing.T) (*session.SQLiteStore, *clock) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := session.NewSQLiteStore(conn, 5*time.Minute)
	s.Now = c.Now
	return s, c
}

func TestGetReturnsFreshSession(t *testing.T) {
	s, _ := newSQLiteStore(t)
	sess, err := s.Get(context.Background(), "ATUid_1")
	require.NoError(t, err)
	assert.Equal(t, "ATUid_1", sess.ID)
	assert.Equal(t, domain.StepInitial, sess.CurrentStep)
	assert.True(t, sess.IsNew())
}

func TestPutGetDelete(t *testing.T) {
	s, c := newSQLiteStore(t)
	ctx := context.Background()
	in := domain.Session{
		ID:          "ATUid_2",
		PhoneNumber: "+254700111111",
		CurrentStep: "loss_location",
		State:       domain.HarvestQuery{Crop: "maize", Quantity: 50},
		TokenOffset: 2,
	}
	require.NoError(t, s.Put(ctx, in))

	c.Advance(time.Minute)
	got, err := s.Get(ctx, "ATUid_2")
	require.NoError(t, err)
	assert.Equal(t, "loss_location", got.CurrentStep)
	assert.Equal(t, in.State, got.State)
	assert.Equal(t, "+254700111111", got.PhoneNumber)
	assert.Equal(t, 2, got.TokenOffset)
	assert.False(t, got.IsNew())

	require.NoError(t, s.Put(ctx, got))
	again, err := s.Get(ctx, "ATUid_2")
	require.NoError(t, err)
	assert.Equal(t, got.CreatedAt, again.CreatedAt)
	assert.True(t, again.UpdatedAt.After(again.CreatedAt))

	require.NoError(t, s.Delete(ctx, "ATUid_2"))
	gone, err := s.Get(ctx, "ATUid_2")
	require.NoError(t, err)
	assert.True(t, gone.IsNew())
}

func TestExpiredSessionIsAbsent(t *testing.T) {
	s, c := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.Session{ID: "stale", CurrentStep: "loss_storage", State: domain.HarvestQuery{Crop: "rice"}}))
	require.NoError(t, s.Put(ctx, domain.Session{ID: "live", CurrentStep: "loss_crop"}))

	c.Advance(6 * time.Minute)
	require.NoError(t, s.Put(ctx, domain.Session{ID: "live", CurrentStep: "loss_quantity"}))

	sess, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.StepInitial, sess.CurrentStep)
	assert.Empty(t, sess.State.Crop)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].ID)
}

func TestPurgeDropsOnlyExpired(t *testing.T) {
	s, c := newSQLiteStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(ctx, domain.Session{ID: fmt.Sprintf("old-%d", i), CurrentStep: "root"}))
	}
	c.Advance(10 * time.Minute)
	require.NoError(t, s.Put(ctx, domain.Session{ID: "new", CurrentStep: "root"}))

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentDistinctSessions(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			if err := s.Put(ctx, domain.Session{ID: id, CurrentStep: "loss_crop"}); err != nil {
				errs <- err
				return
			}
			if _, err := s.Get(ctx, id); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	s, _ := newSQLiteStore(t)
	require.NoError(t, s.DB.Close())
	_, err := s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, session.ErrUnavailable)
	assert.ErrorIs(t, s.Put(context.Background(), session.Fresh("x")), session.ErrUnavailable)
}
