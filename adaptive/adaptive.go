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

// Package adaptive implements AdaptiveHashtable: a single map-like
// surface over variable-length byte-string keys that routes by length
// (and tail byte) to one of five specialized backends — a table1.Table
// for keys of 0, 1, or 2 bytes, three table0.Table instances over
// inline.Key1/Key2/Key3 for keys up to 24 bytes, and a table0.Table
// over fallback.Key (backed by an arena.Arena) for everything else.
//
// The dispatcher is a plain switch over inline.Route's Backend enum,
// not an interface with dynamic dispatch: the five arms are concrete,
// disjoint types known at every call site, so a switch avoids paying
// an interface-call tax on the hot insert path — the same style the
// teacher's bytecode interpreter uses for its opcode dispatch.
package adaptive

import (
	"github.com/SnellerInc/hashtable/arena"
	"github.com/SnellerInc/hashtable/fallback"
	"github.com/SnellerInc/hashtable/fasthash"
	"github.com/SnellerInc/hashtable/inline"
	"github.com/SnellerInc/hashtable/table0"
	"github.com/SnellerInc/hashtable/table1"
)

// subtableCapacity is the initial capacity for each inline/fallback
// backend, per spec.md section 9's normalization (128 for adaptive
// subtables, vs table0.DefaultCapacity==256 for a standalone Table0).
const subtableCapacity = 128

// Table is the AdaptiveHashtable: one arena plus five backends. Each
// key appears in exactly one backend; the choice is a pure function of
// key length and whether its last byte is zero (see inline.Route).
type Table[V any] struct {
	t1      *table1.Table[V]
	inline1 *table0.Table[inline.Key1, V]
	inline2 *table0.Table[inline.Key2, V]
	inline3 *table0.Table[inline.Key3, V]
	fb      *table0.Table[fallback.Key, V]
	arena   *arena.Arena
}

// New returns an empty AdaptiveHashtable.
func New[V any]() *Table[V] {
	return &Table[V]{
		t1:      table1.New[V](),
		inline1: table0.WithCapacity[inline.Key1, V](subtableCapacity, inline.Hash1),
		inline2: table0.WithCapacity[inline.Key2, V](subtableCapacity, inline.Hash2),
		inline3: table0.WithCapacity[inline.Key3, V](subtableCapacity, inline.Hash3),
		fb:      table0.WithEqual[fallback.Key, V](subtableCapacity, fallbackHash, fallback.Equal),
		arena:   arena.New(),
	}
}

func fallbackHash(k fallback.Key) uint64 {
	return k.Hash
}

// Len is the total number of distinct keys across all five backends.
func (a *Table[V]) Len() int {
	return a.t1.Len() + a.inline1.Len() + a.inline2.Len() + a.inline3.Len() + a.fb.Len()
}

// IsEmpty reports whether the table holds no entries.
func (a *Table[V]) IsEmpty() bool {
	return a.Len() == 0
}

// Get returns a pointer to the value for key, or (nil, false) if
// absent.
func (a *Table[V]) Get(key []byte) (*V, bool) {
	switch inline.Route(key) {
	case inline.BackendTable1:
		b0, b1 := table1Bytes(key)
		return a.t1.Get(b0, b1)
	case inline.BackendInline1:
		return a.inline1.Get(inline.Encode1(key))
	case inline.BackendInline2:
		return a.inline2.Get(inline.Encode2(key))
	case inline.BackendInline3:
		return a.inline3.Get(inline.Encode3(key))
	default:
		return a.fb.Get(a.lookupFallbackKey(key))
	}
}

// GetMut is an alias for Get: in Go, the pointer Get returns is
// already mutable, so there is no separate immutable/mutable accessor
// pair the way there is in the Rust original.
func (a *Table[V]) GetMut(key []byte) (*V, bool) {
	return a.Get(key)
}

// Insert returns a pointer to the value slot for key. The bool is true
// when the slot was just created (zero value, caller must initialize
// it) and false when key was already present.
func (a *Table[V]) Insert(key []byte) (*V, bool) {
	switch inline.Route(key) {
	case inline.BackendTable1:
		b0, b1 := table1Bytes(key)
		return a.t1.Insert(b0, b1)
	case inline.BackendInline1:
		a.inline1.EnsureCapacity(1)
		return a.inline1.Insert(inline.Encode1(key))
	case inline.BackendInline2:
		a.inline2.EnsureCapacity(1)
		return a.inline2.Insert(inline.Encode2(key))
	case inline.BackendInline3:
		a.inline3.EnsureCapacity(1)
		return a.inline3.Insert(inline.Encode3(key))
	default:
		return a.insertFallback(key)
	}
}

func (a *Table[V]) insertFallback(key []byte) (*V, bool) {
	h := fasthash.Bytes(key)
	probe := fallback.Key{Ptr: &key[0], Len: int32(len(key)), Hash: h}
	if v, ok := a.fb.Get(probe); ok {
		return v, false
	}
	a.fb.EnsureCapacity(1)
	owned := fallback.New(a.arena.Copy(key), h)
	return a.fb.Insert(owned)
}

// lookupFallbackKey builds a probe key for Get without copying key
// into the arena — Get never needs to own the bytes, only compare
// against what is already stored.
func (a *Table[V]) lookupFallbackKey(key []byte) fallback.Key {
	return fallback.Key{Ptr: &key[0], Len: int32(len(key)), Hash: fasthash.Bytes(key)}
}

func table1Bytes(key []byte) (b0, b1 byte) {
	switch len(key) {
	case 0:
		return 0, 0
	case 1:
		return key[0], 0
	default:
		return key[0], key[1]
	}
}

// Iterate calls fn for every (key, value) pair across all five
// backends, reconstructing each backend's original byte slice, and
// stops early if fn returns false. The multiset union of the five
// backend iterators equals the full iterator and the backends' key
// sets are pairwise disjoint by construction (inline.Route is a pure
// function of length and tail byte).
func (a *Table[V]) Iterate(fn func(key []byte, v *V) bool) {
	done := false
	a.t1.Iterate(func(k [2]byte, v *V) bool {
		n := 2
		if k[1] == 0 {
			n = 1
			if k[0] == 0 {
				n = 0
			}
		}
		if !fn(k[:n], v) {
			done = true
			return false
		}
		return true
	})
	if done {
		return
	}
	a.inline1.Iterate(func(k inline.Key1, v *V) bool {
		if !fn(inline.Decode1(k), v) {
			done = true
			return false
		}
		return true
	})
	if done {
		return
	}
	a.inline2.Iterate(func(k inline.Key2, v *V) bool {
		if !fn(inline.Decode2(k), v) {
			done = true
			return false
		}
		return true
	})
	if done {
		return
	}
	a.inline3.Iterate(func(k inline.Key3, v *V) bool {
		if !fn(inline.Decode3(k), v) {
			done = true
			return false
		}
		return true
	})
	if done {
		return
	}
	a.fb.Iterate(func(k fallback.Key, v *V) bool {
		return fn(fallback.Bytes(k), v)
	})
}

// Merge drains other into a, backend by backend, resolving collisions
// with onCollision.
func (a *Table[V]) Merge(other *Table[V], onCollision func(dst, src *V)) {
	other.Iterate(func(key []byte, v *V) bool {
		dst, created := a.Insert(key)
		if created {
			*dst = *v
		} else {
			onCollision(dst, v)
		}
		return true
	})
}
