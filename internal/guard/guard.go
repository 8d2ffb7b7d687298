// Package guard implements the advisory payload-size and request-rate checks
// that protect the shared room channel. A failed check closes the logical
// exchange, never the transport.
package guard

import (
	"context"
	"errors"
	"time"

	"vrmchat/internal/models"

	"github.com/jackc/pgx/v5"
)

const (
	// GracePeriod after connect during which the rate check is inactive.
	GracePeriod = 2 * time.Second
	// Window is the fixed sliding bucket; a request outside it resets the count.
	Window = time.Second
)

// PayloadWithinLimit reports whether an encoded frame fits the kilobyte
// ceiling. Length is measured on the wire bytes, so multi-byte encodings are
// accounted for.
func PayloadWithinLimit(data []byte, limitKB int) bool {
	if limitKB <= 0 {
		return true
	}
	return float64(len(data))/1024.0 <= float64(limitKB)
}

// AccessStore is the slice of the socket-access store the rate guard needs.
type AccessStore interface {
	GetAccessByID(ctx context.Context, accessID string) (*models.SocketAccess, error)
	UpdateAccessCounters(ctx context.Context, accessID string, requestCount int, lastRequestAt time.Time) error
}

// RateGuard is the per-identity request-count check. Callers must serialize
// invocations per connection; the guard itself only touches that
// connection's own row.
type RateGuard struct {
	store AccessStore
	limit int
	now   func() time.Time
}

func NewRateGuard(store AccessStore, limit int) *RateGuard {
	return &RateGuard{store: store, limit: limit, now: time.Now}
}

// NewRateGuardWithClock is used by tests.
func NewRateGuardWithClock(store AccessStore, limit int, now func() time.Time) *RateGuard {
	return &RateGuard{store: store, limit: limit, now: now}
}

// Allow runs the 1-second bucket check for one inbound request. A missing
// access row passes (the connect bookkeeping may still be in flight); any
// other store failure denies.
func (g *RateGuard) Allow(ctx context.Context, accessID string) bool {
	access, err := g.store.GetAccessByID(ctx, accessID)
	if err != nil {
		return errors.Is(err, pgx.ErrNoRows)
	}

	now := g.now()
	if now.Sub(access.ConnectedAt) < GracePeriod {
		return true
	}

	count := 1
	last := now
	if now.Sub(access.LastRequestAt) < Window {
		count = access.RequestCount + 1
		last = access.LastRequestAt
	}
	if err := g.store.UpdateAccessCounters(ctx, accessID, count, last); err != nil {
		return false
	}
	return count <= g.limit
}
