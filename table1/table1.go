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

// Package table1 implements a direct-addressed table for 2-byte keys:
// the densest, highest-traffic bucket of an AdaptiveHashtable. There
// are exactly 65536 possible keys, so there is no hashing, no
// probing, and no growth — presence is a single bit test, addressed
// directly by the key bytes.
package table1

import "math/bits"

const (
	groups     = 1024
	cellsPerGroup = 64
)

// byteOf[x][y] reconstructs the original 2-byte key for group x, cell
// y, so Iterate has a stable source to hand back as a [2]byte without
// recomputing it from (x, y) inline every time.
var byteOf [groups][cellsPerGroup][2]byte

func init() {
	for x := 0; x < groups; x++ {
		for y := 0; y < cellsPerGroup; y++ {
			byteOf[x][y] = [2]byte{
				byte(x >> 2),
				byte((x&3)<<6) | byte(y),
			}
		}
	}
}

// group/cell split a 2-byte key the way spec.md section 3 defines it:
// group = (b0<<2)|(b1>>6), cell = b1&63.
func split(b0, b1 byte) (group, cell int) {
	return (int(b0) << 2) | int(b1>>6), int(b1 & 63)
}

// Table is a direct-addressed, fixed-capacity (65536 slots) table
// keyed by 2-byte strings, used by AdaptiveHashtable for keys of
// length 0, 1, and 2.
type Table[V any] struct {
	bits [groups]uint64
	data [groups][cellsPerGroup]V
	n    int
}

// New returns an empty Table. There is no WithCapacity: Table1's
// capacity is fixed by its key width.
func New[V any]() *Table[V] {
	return &Table[V]{}
}

// Len is the number of distinct 2-byte keys present.
func (t *Table[V]) Len() int {
	return t.n
}

// Cap is always 65536: every possible 2-byte key has a slot.
func (t *Table[V]) Cap() int {
	return groups * cellsPerGroup
}

// IsEmpty reports whether the table holds no entries.
func (t *Table[V]) IsEmpty() bool {
	return t.n == 0
}

// Get returns a pointer to the value for key (b0, b1), or (nil, false)
// if absent.
func (t *Table[V]) Get(b0, b1 byte) (*V, bool) {
	g, c := split(b0, b1)
	if t.bits[g]&(uint64(1)<<c) == 0 {
		return nil, false
	}
	return &t.data[g][c], true
}

// Insert returns a pointer to the value slot for (b0, b1). The bool is
// true iff the slot was just claimed (value is the zero value, caller
// must initialize it) and false if it already existed.
func (t *Table[V]) Insert(b0, b1 byte) (*V, bool) {
	g, c := split(b0, b1)
	bit := uint64(1) << c
	if t.bits[g]&bit != 0 {
		return &t.data[g][c], false
	}
	t.bits[g] |= bit
	t.n++
	return &t.data[g][c], true
}

// Iterate calls fn for every (key, value) pair, stopping early if fn
// returns false. Order is the group/cell scan order, not specified
// beyond that.
func (t *Table[V]) Iterate(fn func(key [2]byte, v *V) bool) {
	for g := 0; g < groups; g++ {
		word := t.bits[g]
		for word != 0 {
			c := bits.TrailingZeros64(word)
			word &= word - 1
			if !fn(byteOf[g][c], &t.data[g][c]) {
				return
			}
		}
	}
}
