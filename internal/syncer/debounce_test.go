package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"cardboard/api/internal/queue"
)

func setupDebouncer(t *testing.T, window, leaseTTL time.Duration) (*Debouncer, *miniredis.Miniredis, *queue.Delayed) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	delayed := queue.NewDelayed(rdb, ResyncQueueName)
	return NewDebouncer(rdb, delayed, window, leaseTTL), s, delayed
}

func TestArmSchedulesOnlyOnOpen(t *testing.T) {
	d, _, delayed := setupDebouncer(t, 30*time.Minute, 20*time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := d.Arm(ctx, 1); err != nil {
			t.Fatalf("Arm failed: %v", err)
		}
	}

	n, err := delayed.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one scheduled resync, got %d", n)
	}
}

func TestArmDoesNotExtendWindow(t *testing.T) {
	d, s, _ := setupDebouncer(t, 30*time.Minute, 20*time.Minute)
	ctx := context.Background()

	if err := d.Arm(ctx, 1); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}

	// Repeated activity inside the window must not push the edge out.
	s.FastForward(20 * time.Minute)
	if err := d.Arm(ctx, 1); err != nil {
		t.Fatalf("second Arm failed: %v", err)
	}

	ttl := s.TTL(debounceKey(1))
	if ttl > 10*time.Minute {
		t.Errorf("window was extended: remaining ttl %v", ttl)
	}
}

func TestNewWindowOpensAfterExpiry(t *testing.T) {
	d, s, delayed := setupDebouncer(t, 30*time.Minute, 20*time.Minute)
	ctx := context.Background()

	if err := d.Arm(ctx, 1); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	s.FastForward(31 * time.Minute)
	if err := d.Arm(ctx, 1); err != nil {
		t.Fatalf("Arm after expiry failed: %v", err)
	}

	// Nothing has claimed the first job, so both are still scheduled.
	n, _ := delayed.Len(ctx)
	if n != 2 {
		t.Errorf("expected a second resync scheduled after expiry, got %d", n)
	}
}

func TestWindowsArePerBoard(t *testing.T) {
	d, _, delayed := setupDebouncer(t, 30*time.Minute, 20*time.Minute)
	ctx := context.Background()

	if err := d.Arm(ctx, 1); err != nil {
		t.Fatalf("Arm board 1 failed: %v", err)
	}
	if err := d.Arm(ctx, 2); err != nil {
		t.Fatalf("Arm board 2 failed: %v", err)
	}

	n, _ := delayed.Len(ctx)
	if n != 2 {
		t.Errorf("expected one resync per board, got %d", n)
	}
}

func TestFireTakesLeaseOnce(t *testing.T) {
	d, s, _ := setupDebouncer(t, 30*time.Minute, 20*time.Minute)
	ctx := context.Background()

	if err := d.Arm(ctx, 1); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}

	acquired, err := d.Fire(ctx, 1)
	if err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected first Fire to take the lease")
	}
	if s.Exists(debounceKey(1)) {
		t.Error("expected Fire to close the window")
	}

	acquired, err = d.Fire(ctx, 1)
	if err != nil {
		t.Fatalf("second Fire failed: %v", err)
	}
	if acquired {
		t.Error("expected second Fire to find the lease held")
	}
}
