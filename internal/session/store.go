// Package session reads and writes the per-user session state shared with
// the authentication service through Redis: k1 challenges minted for LNURL
// flows, cached balance snapshots and the user lock flag.
package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ln-gateway/pkg/cache"
)

const (
	challengePrefix = "lnurl_challenge::"
	sessionSuffix   = "::session"

	balanceField = "balance"
	statusField  = "status"
)

// StatusActive marks a session usable; StatusLocked freezes it while a
// withdraw is in flight.
const (
	StatusActive = "active"
	StatusLocked = "locked"
)

// Store wraps the Redis session cache.
type Store struct {
	cache *cache.Cache
}

// NewStore creates a session store on top of an existing cache connection
func NewStore(c *cache.Cache) *Store {
	return &Store{cache: c}
}

func challengeKey(k1 string) string {
	return challengePrefix + k1
}

func sessionKey(userID string) string {
	return userID + sessionSuffix
}

// SetChallenge binds a freshly minted k1 to the user for the given TTL.
func (s *Store) SetChallenge(ctx context.Context, k1, userID string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, challengeKey(k1), userID, ttl); err != nil {
		return fmt.Errorf("failed to store challenge %s: %w", k1, err)
	}
	return nil
}

// Challenge resolves a k1 back to the user it was minted for. Returns an
// empty string when the challenge is unknown or expired.
func (s *Store) Challenge(ctx context.Context, k1 string) (string, error) {
	userID, err := s.cache.Get(ctx, challengeKey(k1))
	if err != nil {
		return "", fmt.Errorf("failed to look up challenge %s: %w", k1, err)
	}
	return userID, nil
}

// DeleteChallenge removes a consumed or abandoned challenge.
func (s *Store) DeleteChallenge(ctx context.Context, k1 string) error {
	if _, err := s.cache.Delete(ctx, challengeKey(k1)); err != nil {
		return fmt.Errorf("failed to delete challenge %s: %w", k1, err)
	}
	return nil
}

// BalanceSnapshot returns the cached balance for the user's session. The
// second return value is false when the session or the field is missing; the
// durable ledger stays authoritative either way.
func (s *Store) BalanceSnapshot(ctx context.Context, userID string) (int64, bool, error) {
	raw, err := s.cache.HGet(ctx, sessionKey(userID), balanceField)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read session balance of user %s: %w", userID, err)
	}
	if raw == "" {
		return 0, false, nil
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed session balance %q of user %s: %w", raw, userID, err)
	}
	return balance, true, nil
}

// SetBalanceSnapshot refreshes the cached balance after a ledger change.
func (s *Store) SetBalanceSnapshot(ctx context.Context, userID string, balance int64) error {
	if err := s.cache.HSet(ctx, sessionKey(userID), balanceField, strconv.FormatInt(balance, 10)); err != nil {
		return fmt.Errorf("failed to update session balance of user %s: %w", userID, err)
	}
	return nil
}

// Lock freezes the user's session while a withdraw is being redeemed.
func (s *Store) Lock(ctx context.Context, userID string) error {
	if err := s.cache.HSet(ctx, sessionKey(userID), statusField, StatusLocked); err != nil {
		return fmt.Errorf("failed to lock session of user %s: %w", userID, err)
	}
	return nil
}

// Unlock releases the session lock once the redeem outcome is known.
func (s *Store) Unlock(ctx context.Context, userID string) error {
	if err := s.cache.HSet(ctx, sessionKey(userID), statusField, StatusActive); err != nil {
		return fmt.Errorf("failed to unlock session of user %s: %w", userID, err)
	}
	return nil
}

// Status returns the session status string, empty when no session exists.
func (s *Store) Status(ctx context.Context, userID string) (string, error) {
	status, err := s.cache.HGet(ctx, sessionKey(userID), statusField)
	if err != nil {
		return "", fmt.Errorf("failed to read session status of user %s: %w", userID, err)
	}
	return status, nil
}
