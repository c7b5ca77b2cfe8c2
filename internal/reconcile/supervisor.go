// Package reconcile keeps the ledger consistent with the Lightning node by
// consuming its event streams: payment outcomes settle or roll back queued
// withdraws, settled invoices credit deposits. Streams break whenever the
// node connection hiccups, so every consumer runs under a Supervisor that
// restarts it until shutdown.
package reconcile

import (
	"context"
	"sync"
	"time"

	"ln-gateway/pkg/logger"

	"go.uber.org/zap"
)

const restartBackoff = 5 * time.Second

// Supervisor runs long-lived stream consumers and restarts them when they
// return. A consumer returning nil or an error is treated the same: the
// stream ended and must be reopened. Only context cancellation stops the
// loop.
type Supervisor struct {
	wg      sync.WaitGroup
	backoff time.Duration
}

// NewSupervisor creates a supervisor with the default restart backoff.
func NewSupervisor() *Supervisor {
	return &Supervisor{backoff: restartBackoff}
}

// Go starts fn in its own goroutine and restarts it after each return until
// ctx is cancelled.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			logger.Info("Starting stream consumer", zap.String("consumer", name))
			if err := fn(ctx); err != nil {
				logger.Warn("Stream consumer stopped", zap.String("consumer", name), zap.Error(err))
			} else {
				logger.Info("Stream consumer ended", zap.String("consumer", name))
			}

			select {
			case <-ctx.Done():
				logger.Info("Stream consumer shut down", zap.String("consumer", name))
				return
			case <-time.After(s.backoff):
			}
		}
	}()
}

// Wait blocks until all supervised consumers have shut down.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
