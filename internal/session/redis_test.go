package session_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvestlink/internal/domain"
	"harvestlink/internal/session"
)

func TestRedisStore(t *testing.T) {
	url := os.Getenv("HARVESTLINK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HARVESTLINK_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := session.NewRedisStore(ctx, url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id := "test-" + uuid.NewString()
	fresh, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, fresh.IsNew())

	require.NoError(t, s.Put(ctx, domain.Session{ID: id, CurrentStep: "loss_weather", State: domain.HarvestQuery{Crop: "beans", Quantity: 2000}}))
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "loss_weather", got.CurrentStep)
	assert.Equal(t, 2000.0, got.State.Quantity)

	list, err := s.List(ctx)
	require.NoError(t, err)
	var found bool
	for _, sess := range list {
		found = found || sess.ID == id
	}
	assert.True(t, found)

	require.NoError(t, s.Delete(ctx, id))
	gone, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, gone.IsNew())
}
