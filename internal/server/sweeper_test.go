package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"harvestlink/internal/db"
	"harvestlink/internal/domain"
	"harvestlink/internal/events"
	"harvestlink/internal/migrate"
	"harvestlink/internal/repo"
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

func newSweeper(t *testing.T) (Sweeper, *session.SQLiteStore, repo.Repo, *clock) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	c := &clock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	store := session.NewSQLiteStore(conn, 5*time.Minute)
	store.Now = c.Now
	sw := Sweeper{Store: store, Events: events.Writer{DB: conn, Now: c.Now}, Interval: 10 * time.Millisecond}
	return sw, store, repo.Repo{DB: conn}, c
}

func TestSweepPurgesExpiredSessions(t *testing.T) {
	sw, store, r, c := newSweeper(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.Put(ctx, domain.Session{ID: id, CurrentStep: "loss_crop"}))
	}
	c.Advance(4 * time.Minute)
	require.NoError(t, store.Put(ctx, domain.Session{ID: "c", CurrentStep: "root"}))

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.Advance(2 * time.Minute)
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)

	evts, err := r.LatestEvents(ctx, 10, events.SessionExpired, "")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.JSONEq(t, `{"count":2}`, evts[0].Payload)
}

func TestSweeperRunStopsWithContext(t *testing.T) {
	sw, _, _, _ := newSweeper(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
