//go:build integration

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"ln-gateway/pkg/cache"
	"ln-gateway/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("development")
}

// setupTestRedis connects the stream queue to the test Redis instance
func setupTestRedis(t *testing.T) *StreamQueue {
	t.Helper()

	cfg := cache.Config{
		Host:     "localhost",
		Port:     "6379",
		Password: "",
		DB:       2, // Use DB 2 for queue tests to avoid conflicts
	}

	c, err := cache.New(cfg)
	require.NoError(t, err, "Failed to connect to test Redis")

	t.Cleanup(func() {
		_ = c.Client().FlushDB(context.Background()).Err()
		_ = c.Close()
	})
	return NewStreamQueue(c.Client())
}

func TestStreamQueue_DeclareStream(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	err := q.DeclareStream(ctx, "test:stream", "test-group")
	require.NoError(t, err)

	// second declaration is idempotent
	err = q.DeclareStream(ctx, "test:stream", "test-group")
	require.NoError(t, err)
}

func TestStreamQueue_Publish(t *testing.T) {
	q := setupTestRedis(t)
	ctx := context.Background()

	msgID, err := q.Publish(ctx, "test:publish", []byte("hello world"))
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)
}

func TestStreamQueue_PublishConsume(t *testing.T) {
	q := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := "test:consume"
	group := "consumers"
	require.NoError(t, q.DeclareStream(ctx, stream, group))

	_, err := q.Publish(ctx, stream, []byte(`{"n":1}`))
	require.NoError(t, err)
	_, err = q.Publish(ctx, stream, []byte(`{"n":2}`))
	require.NoError(t, err)

	var mu sync.Mutex
	var received []string
	done := make(chan struct{})

	go func() {
		_ = q.Consume(ctx, stream, group, "worker-1", func(messageID string, data []byte) error {
			mu.Lock()
			received = append(received, string(data))
			if len(received) == 2 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not receive both messages")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{`{"n":1}`, `{"n":2}`}, received)
}

func TestStreamQueue_Consume_StopsOnCancel(t *testing.T) {
	q := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream := "test:cancel"
	group := "consumers"
	require.NoError(t, q.DeclareStream(ctx, stream, group))

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, stream, group, "worker-1", func(string, []byte) error { return nil })
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
