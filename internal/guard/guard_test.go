package guard

import (
	"context"
	"strings"
	"testing"
	"time"

	"vrmchat/internal/models"

	"github.com/jackc/pgx/v5"
)

func TestPayloadWithinLimit(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		limitKB int
		want    bool
	}{
		{"empty", nil, 1, true},
		{"under limit", make([]byte, 512), 1, true},
		{"at limit", make([]byte, 1024), 1, true},
		{"over limit", make([]byte, 1025), 1, false},
		{"multibyte counted as wire bytes", []byte(strings.Repeat("あ", 400)), 1, false},
		{"zero limit disables", make([]byte, 1<<20), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PayloadWithinLimit(tt.data, tt.limitKB); got != tt.want {
				t.Errorf("PayloadWithinLimit(%d bytes, %dKB) = %v, want %v", len(tt.data), tt.limitKB, got, tt.want)
			}
		})
	}
}

type fakeAccessStore struct {
	access  *models.SocketAccess
	getErr  error
	updErr  error
	updated []models.SocketAccess
}

func (s *fakeAccessStore) GetAccessByID(ctx context.Context, accessID string) (*models.SocketAccess, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	copied := *s.access
	return &copied, nil
}

func (s *fakeAccessStore) UpdateAccessCounters(ctx context.Context, accessID string, requestCount int, lastRequestAt time.Time) error {
	if s.updErr != nil {
		return s.updErr
	}
	s.access.RequestCount = requestCount
	s.access.LastRequestAt = lastRequestAt
	s.updated = append(s.updated, *s.access)
	return nil
}

func TestRateGuardGracePeriod(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeAccessStore{access: &models.SocketAccess{
		AccessID:      "a1",
		ConnectedAt:   base,
		LastRequestAt: base,
	}}
	g := NewRateGuardWithClock(store, 1, func() time.Time { return base.Add(GracePeriod - time.Millisecond) })

	// Any burst passes inside the grace period.
	for i := 0; i < 10; i++ {
		if !g.Allow(context.Background(), "a1") {
			t.Fatalf("request %d denied during grace period", i)
		}
	}
	if len(store.updated) != 0 {
		t.Fatal("grace period must not touch the counters")
	}
}

func TestRateGuardWithinWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeAccessStore{access: &models.SocketAccess{
		AccessID:      "a1",
		ConnectedAt:   base.Add(-time.Minute),
		LastRequestAt: base,
		RequestCount:  1,
	}}

	now := base.Add(500 * time.Millisecond)
	g := NewRateGuardWithClock(store, 2, func() time.Time { return now })

	// Second request inside the window: count goes to 2, still allowed.
	if !g.Allow(context.Background(), "a1") {
		t.Fatal("second request should pass")
	}
	if store.access.RequestCount != 2 {
		t.Fatalf("count = %d, want 2", store.access.RequestCount)
	}
	if !store.access.LastRequestAt.Equal(base) {
		t.Fatal("window anchor must not advance inside the window")
	}

	// Third request exceeds the ceiling strictly.
	if g.Allow(context.Background(), "a1") {
		t.Fatal("third request should be denied")
	}
}

func TestRateGuardFreshWindowResets(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeAccessStore{access: &models.SocketAccess{
		AccessID:      "a1",
		ConnectedAt:   base.Add(-time.Minute),
		LastRequestAt: base,
		RequestCount:  5,
	}}

	now := base.Add(Window + time.Millisecond)
	g := NewRateGuardWithClock(store, 2, func() time.Time { return now })

	if !g.Allow(context.Background(), "a1") {
		t.Fatal("request in a fresh window should pass")
	}
	if store.access.RequestCount != 1 {
		t.Fatalf("count = %d, want 1 after reset", store.access.RequestCount)
	}
	if !store.access.LastRequestAt.Equal(now) {
		t.Fatal("window anchor should advance to now")
	}
}

func TestRateGuardAtCeilingPasses(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeAccessStore{access: &models.SocketAccess{
		AccessID:      "a1",
		ConnectedAt:   base.Add(-time.Minute),
		LastRequestAt: base,
		RequestCount:  1,
	}}
	g := NewRateGuardWithClock(store, 2, func() time.Time { return base.Add(time.Millisecond) })

	// Count reaches exactly the ceiling; the check is strictly greater-than.
	if !g.Allow(context.Background(), "a1") {
		t.Fatal("count equal to the ceiling must pass")
	}
}

func TestRateGuardMissingRowPasses(t *testing.T) {
	store := &fakeAccessStore{getErr: pgx.ErrNoRows}
	g := NewRateGuard(store, 1)
	if !g.Allow(context.Background(), "ghost") {
		t.Fatal("missing access row must pass; connect bookkeeping may lag")
	}
}

func TestRateGuardStoreFailureDenies(t *testing.T) {
	store := &fakeAccessStore{getErr: context.DeadlineExceeded}
	g := NewRateGuard(store, 1)
	if g.Allow(context.Background(), "a1") {
		t.Fatal("store failure must deny")
	}
}
