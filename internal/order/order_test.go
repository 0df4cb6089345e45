package order

import (
	"math"
	"sort"
	"testing"
)

func TestAppendEmptySet(t *testing.T) {
	if got := Append(nil); got != Seed {
		t.Errorf("expected seed key %v, got %v", Seed, got)
	}
}

func TestAppendStepsPastLast(t *testing.T) {
	last := 42.0
	for i := 0; i < 100; i++ {
		got := Append(&last)
		if got < last+appendBase || got >= last+appendBase+appendJitter {
			t.Fatalf("append key %v outside [%v, %v)", got, last+appendBase, last+appendBase+appendJitter)
		}
	}
}

func TestMidpointBetween(t *testing.T) {
	mid, err := Midpoint(1.0, 2.0)
	if err != nil {
		t.Fatalf("Midpoint failed: %v", err)
	}
	if mid <= 1.0 || mid >= 2.0 {
		t.Errorf("midpoint %v not strictly between 1 and 2", mid)
	}
}

func TestMidpointExhausted(t *testing.T) {
	lo := 1.0
	hi := math.Nextafter(lo, 2.0)
	if _, err := Midpoint(lo, hi); err != ErrKeyExhausted {
		t.Errorf("expected ErrKeyExhausted, got %v", err)
	}
}

func TestMidpointInverted(t *testing.T) {
	if _, err := Midpoint(2.0, 1.0); err != ErrBadWindow {
		t.Errorf("expected ErrBadWindow, got %v", err)
	}
}

func TestKeyForMoveDownBetweenNeighbors(t *testing.T) {
	// Item at 10 moving down one position over 20, landing between 20 and 30.
	key, err := KeyForMove([]float64{10, 20, 30}, 1)
	if err != nil {
		t.Fatalf("KeyForMove failed: %v", err)
	}
	if key <= 20 || key >= 30 {
		t.Errorf("key %v not between 20 and 30", key)
	}
}

func TestKeyForMoveUpBetweenNeighbors(t *testing.T) {
	// Item at 30 moving up one position over 20, landing between 10 and 20.
	key, err := KeyForMove([]float64{30, 20, 10}, -1)
	if err != nil {
		t.Fatalf("KeyForMove failed: %v", err)
	}
	if key <= 10 || key >= 20 {
		t.Errorf("key %v not between 10 and 20", key)
	}
}

func TestKeyForMovePastEndAppends(t *testing.T) {
	key, err := KeyForMove([]float64{10, 20}, 5)
	if err != nil {
		t.Fatalf("KeyForMove failed: %v", err)
	}
	if key <= 20 {
		t.Errorf("key %v should land after 20", key)
	}
}

func TestMoveAboveFirstItem(t *testing.T) {
	// Insert card A (key 1.0), append card B, move B above A with offset -1:
	// the new key must land strictly between 0 and 1.0.
	keyA := Seed
	keyB := Append(&keyA)

	key, err := KeyForMove([]float64{keyB, keyA}, -1)
	if err != nil {
		t.Fatalf("KeyForMove failed: %v", err)
	}
	if key <= 0 || key >= keyA {
		t.Errorf("key %v not in (0, %v)", key, keyA)
	}
}

func TestTiedKeysAreExhaustedNotInvalid(t *testing.T) {
	// Concurrent uncoordinated appends can land two siblings on the same key.
	// The tie must route to the renumber fallback, not abort the move.
	if _, err := KeyForMove([]float64{5, 5}, 1); err != ErrKeyExhausted {
		t.Errorf("expected ErrKeyExhausted for tied pair moving down, got %v", err)
	}
	if _, err := KeyForMove([]float64{5, 5}, -1); err != ErrKeyExhausted {
		t.Errorf("expected ErrKeyExhausted for tied pair moving up, got %v", err)
	}
	if _, err := KeyForMove([]float64{5, 5, 10}, 1); err != ErrKeyExhausted {
		t.Errorf("expected ErrKeyExhausted for tie inside window, got %v", err)
	}
	if _, err := Midpoint(5, 5); err != ErrKeyExhausted {
		t.Errorf("expected ErrKeyExhausted for equal bounds, got %v", err)
	}
}

func TestKeyForMoveRejectsUnsortedWindow(t *testing.T) {
	if _, err := KeyForMove([]float64{10, 30, 20}, 1); err != ErrBadWindow {
		t.Errorf("expected ErrBadWindow for unsorted window, got %v", err)
	}
	if _, err := KeyForMove([]float64{30, 10, 20}, -1); err != ErrBadWindow {
		t.Errorf("expected ErrBadWindow for unsorted window, got %v", err)
	}
}

func TestKeyForMoveRejectsZeroOffset(t *testing.T) {
	if _, err := KeyForMove([]float64{10, 20}, 0); err != ErrBadWindow {
		t.Errorf("expected ErrBadWindow for zero offset, got %v", err)
	}
}

func TestRepeatedBoundaryInsertsStayOrdered(t *testing.T) {
	// Squeeze keys between the first two items until the interval runs out;
	// every produced key must keep the set pairwise distinct and ordered.
	keys := []float64{10, 20}
	for i := 0; i < 100; i++ {
		mid, err := Midpoint(keys[0], keys[1])
		if err == ErrKeyExhausted {
			return // expected eventually
		}
		if err != nil {
			t.Fatalf("Midpoint failed: %v", err)
		}
		keys = append([]float64{keys[0], mid}, keys[1:]...)
		if !sort.Float64sAreSorted(keys) {
			t.Fatalf("keys out of order after insert %d: %v", i, keys)
		}
		for j := 1; j < len(keys); j++ {
			if keys[j] == keys[j-1] {
				t.Fatalf("duplicate key %v after insert %d", keys[j], i)
			}
		}
	}
	t.Fatal("interval never exhausted after 100 boundary inserts")
}

func TestRenumberSpacing(t *testing.T) {
	keys := Renumber(4)
	if len(keys) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(keys))
	}
	for i, key := range keys {
		if key != float64(i+1)*renumberSpacing {
			t.Errorf("key[%d] = %v, expected %v", i, key, float64(i+1)*renumberSpacing)
		}
		if key != math.Trunc(key) {
			t.Errorf("key[%d] = %v is not integer-valued", i, key)
		}
	}
}

func TestRenumberEmpty(t *testing.T) {
	if keys := Renumber(0); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}
