package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ln-gateway/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func init() {
	_ = logger.Init("development")
}

func TestSupervisor_RestartsAfterReturn(t *testing.T) {
	s := NewSupervisor()
	s.backoff = time.Millisecond

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s.Go(ctx, "flaky", func(context.Context) error {
		runs.Add(1)
		return errors.New("stream broke")
	})

	assert.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond, "consumer should be restarted after each failure")

	cancel()
	s.Wait()
}

func TestSupervisor_RestartsAfterNilReturn(t *testing.T) {
	s := NewSupervisor()
	s.backoff = time.Millisecond

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s.Go(ctx, "quiet", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()
}

func TestSupervisor_StopsOnCancel(t *testing.T) {
	s := NewSupervisor()
	s.backoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 1)
	s.Go(ctx, "blocking", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not shut down after cancel")
	}
}
