// Package order computes fractional sort keys for cards and columns.
// Keys are floating-point values, strictly increasing in visual order within
// a sibling set. Reordering an item only ever touches that item's row; the
// occasional renumbering of a whole sibling set is the single O(n) fallback.
package order

import (
	"errors"
	"math/rand"
)

const (
	// Seed is the key assigned to the first item of an empty sibling set.
	Seed = 1.0

	// Appends step past the current maximum by a randomized amount in
	// [appendBase, appendBase+appendJitter). The jitter keeps concurrent
	// uncoordinated appends from colliding on the same key.
	appendBase   = 9.0
	appendJitter = 2.0

	renumberSpacing = 10.0

	// epsilon bounds how tightly two sibling keys may crowd before the
	// interval between them is considered exhausted.
	epsilon = 1e-9
)

var (
	// ErrKeyExhausted reports that no representable key fits between the
	// target neighbors; the caller should renumber the sibling set.
	ErrKeyExhausted = errors.New("order: key interval exhausted")

	// ErrBadWindow reports that the supplied neighbor window is not a valid
	// ordered window around the moving item; the caller must abort the move.
	ErrBadWindow = errors.New("order: inconsistent neighbor window")
)

// Append returns a key placing a new item after the current last key, or the
// seed key when the sibling set is empty.
func Append(last *float64) float64 {
	if last == nil {
		return Seed
	}
	return *last + appendBase + rand.Float64()*appendJitter
}

// Midpoint returns a key strictly between lo and hi. Equal bounds are an
// exhausted interval, not a malformed one: concurrent appends can tie keys,
// and only renumbering splits a tie.
func Midpoint(lo, hi float64) (float64, error) {
	if hi < lo {
		return 0, ErrBadWindow
	}
	mid := lo + (hi-lo)/2
	if hi-lo < epsilon || mid <= lo || mid >= hi {
		return 0, ErrKeyExhausted
	}
	return mid, nil
}

// KeyForMove computes the new key for an item moved |offset| positions within
// its sibling set. window holds the item's current key followed by the
// sibling keys in the direction of the move: ascending for a downward move,
// descending for an upward one. The window only needs to reach |offset|+1
// siblings past the item; a shorter window means the item moves past the end.
func KeyForMove(window []float64, offset int) (float64, error) {
	if offset == 0 || len(window) < 2 {
		return 0, ErrBadWindow
	}
	down := offset > 0
	steps := offset
	if steps < 0 {
		steps = -steps
	}

	for i := 1; i < len(window); i++ {
		if window[i] == window[i-1] {
			// Tied keys from concurrent appends; renumbering breaks the tie.
			return 0, ErrKeyExhausted
		}
		if down && window[i] < window[i-1] {
			return 0, ErrBadWindow
		}
		if !down && window[i] > window[i-1] {
			return 0, ErrBadWindow
		}
	}

	if steps >= len(window)-1 {
		// Moved to or past the end of the window.
		last := window[len(window)-1]
		if down {
			return Append(&last), nil
		}
		// Above the first item: halve toward zero.
		if last < epsilon {
			return 0, ErrKeyExhausted
		}
		return last / 2, nil
	}

	if down {
		return Midpoint(window[steps], window[steps+1])
	}
	return Midpoint(window[steps+1], window[steps])
}

// Renumber produces n evenly spaced integer-valued keys for a full rewrite of
// a sibling set.
func Renumber(n int) []float64 {
	keys := make([]float64, n)
	for i := range keys {
		keys[i] = float64(i+1) * renumberSpacing
	}
	return keys
}
