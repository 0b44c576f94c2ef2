// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package table0 implements an open-addressing, linear-probing hash
// table for fixed-size, copyable keys. The all-zero key is never
// stored in the probed array: it lives in a dedicated escape slot, so
// the zero bit pattern can double as the "empty slot" marker without
// ambiguity. Capacity is always a power of two; growth rehashes every
// entry into a freshly allocated, larger slot array.
//
// There is no delete and no concurrent access: each Table has exactly
// one owner at a time, matching the rest of this module.
package table0

import (
	"github.com/SnellerInc/hashtable/hterr"
)

// DefaultCapacity is the initial slot count for a top-level Table0,
// per the normalization in spec.md section 9 (adaptive's inline/
// fallback backends use a smaller initial capacity, see
// WithCapacity(128) at their call sites).
const DefaultCapacity = 256

// growQuadrupleBelow is the slot count under which Grow quadruples
// capacity instead of doubling; above it, growth always doubles.
const growQuadrupleBelow = 1 << 22

// Slot is one element of a Table's backing array, exposed so package
// batch can gather/scatter directly by index the way the spec's
// vectorized loop does.
type Slot[K comparable, V any] struct {
	Key   K
	Value V
	Used  bool
}

// Table is an open-addressed hash table keyed by K. The zero value of
// K is reserved as the empty-slot sentinel; an entry for the actual
// zero key (if ever inserted) lives in a separate escape slot.
type Table[K comparable, V any] struct {
	slots []Slot[K, V]
	mask  uint64
	n     int

	hasEscape bool
	escape    V

	hash  func(K) uint64
	equal func(a, b K) bool
}

// New returns an empty Table with DefaultCapacity slots.
func New[K comparable, V any](hash func(K) uint64) *Table[K, V] {
	return WithCapacity[K, V](DefaultCapacity, hash)
}

// WithCapacity returns an empty Table with at least n slots, rounded
// up to the next power of two (minimum 8).
func WithCapacity[K comparable, V any](n int, hash func(K) uint64) *Table[K, V] {
	return withCapacity[K, V](n, hash, nil)
}

// WithEqual is like WithCapacity but overrides key comparison. Used
// for key types (fallback.Key) whose Go == operator does not match
// the intended key equality — see DESIGN.md, "FallbackKey equality".
func WithEqual[K comparable, V any](n int, hash func(K) uint64, equal func(a, b K) bool) *Table[K, V] {
	return withCapacity[K, V](n, hash, equal)
}

func withCapacity[K comparable, V any](n int, hash func(K) uint64, equal func(a, b K) bool) *Table[K, V] {
	cap := nextPow2(n, 8)
	return &Table[K, V]{
		slots: make([]Slot[K, V], cap),
		mask:  uint64(cap) - 1,
		hash:  hash,
		equal: equal,
	}
}

func nextPow2(n, min int) int {
	if n < min {
		n = min
	}
	p := min
	for p < n {
		p <<= 1
	}
	return p
}

func (t *Table[K, V]) isZero(k K) bool {
	var z K
	return t.eq(k, z)
}

func (t *Table[K, V]) eq(a, b K) bool {
	if t.equal != nil {
		return t.equal(a, b)
	}
	return a == b
}

// Len is the number of distinct keys currently stored, including the
// zero key if present via the escape slot.
func (t *Table[K, V]) Len() int {
	n := t.n
	if t.hasEscape {
		n++
	}
	return n
}

// Cap is the size of the probed slot array (excludes the escape slot,
// which is not subject to the load factor).
func (t *Table[K, V]) Cap() int {
	return len(t.slots)
}

// IsEmpty reports whether the table holds no entries at all.
func (t *Table[K, V]) IsEmpty() bool {
	return t.Len() == 0
}

// Get returns a pointer to the value for k, or (nil, false) if k has
// not been inserted.
func (t *Table[K, V]) Get(k K) (*V, bool) {
	if t.isZero(k) {
		if t.hasEscape {
			return &t.escape, true
		}
		return nil, false
	}
	i := t.home(k)
	for {
		s := &t.slots[i]
		if !s.Used {
			return nil, false
		}
		if t.eq(s.Key, k) {
			return &s.Value, true
		}
		i = (i + 1) & t.mask
	}
}

func (t *Table[K, V]) home(k K) uint64 {
	return t.hash(k) & t.mask
}

// Insert returns a pointer to the value slot for k. The boolean is
// true when the slot was just created (its V is the type's zero
// value, and the caller is responsible for initializing it before any
// other Table operation runs) and false when k was already present
// (the returned value is the existing one).
//
// The caller must ensure (n+1)*2 <= Cap() before calling Insert, where
// n is the number of entries in the probed array (Len() minus the
// escape slot, which is not subject to the load factor);
// AdaptiveHashtable and the batch path enforce this by calling Grow
// first. Violating it is a programmer error.
func (t *Table[K, V]) Insert(k K) (*V, bool) {
	if t.isZero(k) {
		if t.hasEscape {
			return &t.escape, false
		}
		t.hasEscape = true
		return &t.escape, true
	}
	hterr.Precondition((t.n+1)*2 <= len(t.slots), "table0: insert without prior grow (len=%d cap=%d)", t.n, len(t.slots))
	i := t.home(k)
	for {
		s := &t.slots[i]
		if !s.Used {
			s.Used = true
			s.Key = k
			t.n++
			return &s.Value, true
		}
		if t.eq(s.Key, k) {
			return &s.Value, false
		}
		i = (i + 1) & t.mask
	}
}

// Grow quadruples capacity below growQuadrupleBelow slots and doubles
// it at or above that size, per spec.md section 9's normalization, and
// rehashes every entry into the new, freshly allocated slot array.
func (t *Table[K, V]) Grow() {
	shift := 1
	if len(t.slots) < growQuadrupleBelow {
		shift = 2
	}
	t.growShift(shift)
}

// EnsureCapacity grows the table until (n+extra)*2 <= Cap(), with n
// the number of entries in the probed array (the escape slot is not
// counted), which is the load-factor precondition Insert requires.
// Called once up front by batch's Upserter.Flush, so its vector loop
// never has to check, and by AdaptiveHashtable before each insert
// into a table0 backend.
func (t *Table[K, V]) EnsureCapacity(extra int) {
	for (t.n+extra)*2 > len(t.slots) {
		t.Grow()
	}
}

func (t *Table[K, V]) growShift(shift int) {
	hterr.Precondition(shift >= 1, "table0: Grow shift must be >= 1, got %d", shift)
	old := t.slots
	oldCap := len(old)
	newCap := oldCap << shift
	grown := make([]Slot[K, V], newCap)
	newMask := uint64(newCap) - 1

	// walk the old array in physical order; for each occupied slot,
	// probe the *new* array's sequence from its home and claim the
	// first free slot found there.
	for i := range old {
		if !old[i].Used {
			continue
		}
		placeInto(grown, newMask, t.hash, old[i].Key, old[i].Value)
	}

	t.slots = grown
	t.mask = newMask
}

// placeInto inserts (key, value) into dst starting its probe at
// hash(key)&mask, claiming the first empty slot on the way. It never
// encounters a matching key: the caller guarantees every key it places
// is distinct (it is rehoming an already-deduplicated table).
func placeInto[K comparable, V any](dst []Slot[K, V], mask uint64, hash func(K) uint64, key K, value V) {
	i := hash(key) & mask
	for dst[i].Used {
		i = (i + 1) & mask
	}
	dst[i] = Slot[K, V]{Key: key, Value: value, Used: true}
}

// Split moves every entry whose hash satisfies pred into a freshly
// allocated sibling table of the same capacity, then compacts self's
// remaining entries. Used by two-level/extendible composites built on
// top of Table0. The remaining entries are rehomed into a fresh array
// of the same capacity with the same placeInto routine Grow uses.
func (t *Table[K, V]) Split(pred func(hash uint64) bool) *Table[K, V] {
	sibling := &Table[K, V]{
		slots: make([]Slot[K, V], len(t.slots)),
		mask:  t.mask,
		hash:  t.hash,
		equal: t.equal,
	}
	residual := make([]Slot[K, V], len(t.slots))
	for i := range t.slots {
		s := t.slots[i]
		if !s.Used {
			continue
		}
		h := t.hash(s.Key)
		if pred(h) {
			placeInto(sibling.slots, sibling.mask, t.hash, s.Key, s.Value)
			sibling.n++
		} else {
			placeInto(residual, t.mask, t.hash, s.Key, s.Value)
		}
	}
	t.slots = residual
	t.n -= sibling.n

	if t.hasEscape {
		// the zero key has no slot in the probed array, but it hashes
		// deterministically like any other input; route it by the same
		// predicate applied to its hash.
		if pred(t.hash(zeroOf[K]())) {
			sibling.hasEscape = true
			sibling.escape = t.escape
			t.hasEscape = false
			var zv V
			t.escape = zv
		}
	}
	return sibling
}

func zeroOf[K any]() K {
	var z K
	return z
}

// Merge drains other into t, growing t first so every entry in other
// fits without Insert overflowing. Equal keys are resolved by
// onCollision(dst, src), which is expected to fold src's value into
// dst's (e.g. summation for COUNT-style aggregates).
func (t *Table[K, V]) Merge(other *Table[K, V], onCollision func(dst, src *V)) {
	t.EnsureCapacity(other.Len())
	other.Iterate(func(k K, v *V) bool {
		dst, created := t.Insert(k)
		if created {
			*dst = *v
		} else {
			onCollision(dst, v)
		}
		return true
	})
}

// Iterate calls fn for every (key, value) pair in unspecified order,
// stopping early if fn returns false. fn must not call Insert or Grow
// on t; doing so invalidates the iteration (matches sync.Map.Range's
// contract and vm/radix64.go's Walk).
func (t *Table[K, V]) Iterate(fn func(K, *V) bool) {
	if t.hasEscape {
		var z K
		if !fn(z, &t.escape) {
			return
		}
	}
	for i := range t.slots {
		if !t.slots[i].Used {
			continue
		}
		if !fn(t.slots[i].Key, &t.slots[i].Value) {
			return
		}
	}
}

// Slots exposes the backing slot array directly so package batch can
// gather/scatter by precomputed index, the same way spec.md section
// 4.6 calls for "raw gather/scatter into arrays of power-of-two
// capacity whose indices are precomputed". Callers outside this
// module's batch path should prefer Get/Insert/Iterate.
func (t *Table[K, V]) Slots() []Slot[K, V] {
	return t.slots
}

// Mask is Cap()-1; home(k) == Hash(k)&Mask().
func (t *Table[K, V]) Mask() uint64 {
	return t.mask
}

// Hash exposes the table's configured hash function.
func (t *Table[K, V]) Hash(k K) uint64 {
	return t.hash(k)
}

// AddLen adjusts the tracked entry count directly. batch's vector loop
// claims slots by writing them through Slots() and adds the number it
// claimed once, at the end of the loop, instead of once per Insert
// call.
func (t *Table[K, V]) AddLen(delta int) {
	t.n += delta
}
