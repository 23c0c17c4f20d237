package redisfan

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "codegraph-backend/internal/domain/events"
)

func newTestFan(t *testing.T) (*Fan, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	fan, err := New(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fan.Close() })
	return fan, mr
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "not-a-url", nil)
	assert.Error(t, err)
}

func TestNewRejectsUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), "redis://"+addr, nil)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	fan, mr := newTestFan(t)
	assert.True(t, fan.Ping(context.Background()))

	mr.Close()
	assert.False(t, fan.Ping(context.Background()))
}

func TestPublishDeliversToChannel(t *testing.T) {
	fan, mr := newTestFan(t)

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(context.Background(), Channel)
	defer ps.Close()
	_, err := ps.Receive(context.Background())
	require.NoError(t, err)

	evt := domainevents.NewAnalysisCompleted("batch-1", domainevents.Progress{Nodes: 3})
	evt.EventID = 7
	require.NoError(t, fan.Publish(evt))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got domainevents.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, uint64(7), got.EventID)
	assert.Equal(t, domainevents.TypeAnalysisCompleted, got.Type)
	assert.Equal(t, "batch-1", got.EntityID)
}
