package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"cardboard/api/internal/queue"
	"cardboard/api/internal/store"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*BoardCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, ttl), s
}

func snapshot(boardID int64, title string) store.BoardContent {
	return store.BoardContent{
		Board: store.Board{ID: boardID, Title: title},
		Columns: []store.ColumnContent{
			{
				Column: store.Column{ID: 1, BoardID: boardID, Title: "todo", OrderKey: 1},
				Cards: []store.CardContent{
					{Card: store.Card{ID: 7, ColumnID: 1, BoardID: boardID, Content: "write tests", OrderKey: 1}},
				},
			},
		},
	}
}

func TestPutAndGet(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, 42); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(ctx, 42, snapshot(42, "roadmap"))

	got, ok := c.Get(ctx, 42)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got.Board.Title != "roadmap" {
		t.Errorf("expected title roadmap, got %q", got.Board.Title)
	}
	if len(got.Columns) != 1 || len(got.Columns[0].Cards) != 1 {
		t.Errorf("snapshot shape lost: %+v", got)
	}
}

func TestEntryExpires(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	ctx := context.Background()

	c.Put(ctx, 7, snapshot(7, "short-lived"))
	s.FastForward(2 * time.Minute)

	if _, ok := c.Get(ctx, 7); ok {
		t.Error("expected entry to expire")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	c, _ := setupTestCache(t, time.Minute)
	ctx := context.Background()

	c.Put(ctx, 9, snapshot(9, "temp"))
	if err := c.Delete(ctx, 9); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete(ctx, 9); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, ok := c.Get(ctx, 9); ok {
		t.Error("expected entry gone after delete")
	}
}

func TestCorruptEntryIsEvicted(t *testing.T) {
	c, s := setupTestCache(t, time.Minute)
	ctx := context.Background()

	if err := s.Set("cache:board:5", "not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if _, ok := c.Get(ctx, 5); ok {
		t.Fatal("expected miss for corrupt entry")
	}
	if s.Exists("cache:board:5") {
		t.Error("expected corrupt entry evicted")
	}
}

func setupTestInvalidator(t *testing.T, delay time.Duration) (*Invalidator, *BoardCache, *queue.Delayed) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := New(rdb, time.Minute)
	d := queue.NewDelayed(rdb, DeleteQueueName)
	return NewInvalidator(c, d, delay), c, d
}

func TestInvalidateDeletesImmediately(t *testing.T) {
	inv, c, d := setupTestInvalidator(t, time.Hour)
	ctx := context.Background()

	c.Put(ctx, 3, snapshot(3, "stale"))
	inv.Invalidate(ctx, 3)

	if _, ok := c.Get(ctx, 3); ok {
		t.Error("expected immediate delete")
	}

	n, err := d.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one scheduled second delete, got %d", n)
	}
}

func TestSecondDeleteClearsRaceInsertedEntry(t *testing.T) {
	inv, c, _ := setupTestInvalidator(t, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv.Invalidate(ctx, 4)

	// Simulate a racing reader repopulating with pre-mutation data after the
	// first delete already ran.
	c.Put(ctx, 4, snapshot(4, "pre-mutation"))

	go inv.Run(ctx, 5*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := c.Get(ctx, 4); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("second delete never cleared the race-inserted entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRepeatedInvalidationsAreHarmless(t *testing.T) {
	inv, c, d := setupTestInvalidator(t, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inv.Invalidate(ctx, 11)
	}

	if _, ok := c.Get(ctx, 11); ok {
		t.Error("expected entry gone")
	}
	n, _ := d.Len(ctx)
	if n != 3 {
		t.Errorf("expected 3 scheduled deletes (idempotent on delivery), got %d", n)
	}
}
