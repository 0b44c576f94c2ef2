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

// Package inline implements the fixed-width lane encodings for short
// byte-string keys (3..24 bytes) and the length/tail-byte routing
// rule an AdaptiveHashtable uses to pick a backend for an arbitrary
// byte slice.
//
// Key1/Key2/Key3 each pack a byte string into N 64-bit lanes, with the
// guarantee (enforced by Route, which sends every key whose last byte
// is zero to the fallback backend) that a real key always leaves its
// final lane non-zero. That non-zero final lane is
// the type's own "this slot is occupied" sentinel, so Key1{}/Key2{}/
// Key3{} (the Go zero value) is safe to use as table0's empty marker.
package inline

import (
	"encoding/binary"

	"github.com/SnellerInc/hashtable/fasthash"
)

// Backend identifies which AdaptiveHashtable arm a byte-string key
// routes to.
type Backend int

const (
	BackendTable1 Backend = iota
	BackendInline1
	BackendInline2
	BackendInline3
	BackendFallback
)

// Key1 encodes byte strings of length 3..8 in a single 64-bit lane.
type Key1 struct{ L0 uint64 }

// Key2 encodes byte strings of length 9..16 in two 64-bit lanes.
type Key2 struct{ L0, L1 uint64 }

// Key3 encodes byte strings of length 17..24 in three 64-bit lanes.
type Key3 struct{ L0, L1, L2 uint64 }

// Route decides which backend a byte-string key belongs to, per
// spec.md section 4.4's table: any key whose last byte is 0 — of any
// length — is diverted to the fallback backend, because the inline
// encodings use "final lane non-zero" as their own presence sentinel
// and a trailing zero byte would make a real key indistinguishable
// from an empty inline slot. This rule must be applied exactly; do
// not attempt to special-case zero bytes elsewhere in the key.
func Route(key []byte) Backend {
	n := len(key)
	if n > 0 && key[n-1] == 0 {
		return BackendFallback
	}
	switch {
	case n <= 2:
		return BackendTable1
	case n <= 8:
		return BackendInline1
	case n <= 16:
		return BackendInline2
	case n <= 24:
		return BackendInline3
	default:
		return BackendFallback
	}
}

// readTail returns the low n bytes of b (1 <= n <= 8), zero-extended
// to 64 bits little-endian. This is the safe, bounds-checked Go
// analogue of spec.md section 4.4's unsafe read_le: Go slices carry
// their own length, so there is no page-boundary hazard to guard
// against and no need for an unaligned-read heuristic — we simply
// bounds-check via the slice and zero-pad the rest.
func readTail(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// Encode1 builds a Key1 from a 3..8 byte slice.
func Encode1(key []byte) Key1 {
	return Key1{L0: readTail(key)}
}

// Encode2 builds a Key2 from a 9..16 byte slice: the first 8 bytes are
// a full aligned read, the remainder is tail-safe.
func Encode2(key []byte) Key2 {
	return Key2{
		L0: binary.LittleEndian.Uint64(key[:8]),
		L1: readTail(key[8:]),
	}
}

// Encode3 builds a Key3 from a 17..24 byte slice: two full 8-byte
// reads followed by a tail-safe read.
func Encode3(key []byte) Key3 {
	return Key3{
		L0: binary.LittleEndian.Uint64(key[:8]),
		L1: binary.LittleEndian.Uint64(key[8:16]),
		L2: readTail(key[16:]),
	}
}

// Hash1/Hash2/Hash3 mix every lane, in order, into FastHash's two
// CRC32C states — see fasthash.InlineLanes.
func Hash1(k Key1) uint64 { return fasthash.InlineLanes([]uint64{k.L0}) }
func Hash2(k Key2) uint64 { return fasthash.InlineLanes([]uint64{k.L0, k.L1}) }
func Hash3(k Key3) uint64 { return fasthash.InlineLanes([]uint64{k.L0, k.L1, k.L2}) }

// lastNonZeroByte scans a 64-bit lane from its high byte down and
// returns the index (0..7, little-endian byte position) of the first
// non-zero byte found, or -1 if the lane is all zero. Used by Decode*
// to recover the original key length from the padding scheme: since
// Encode* guarantees the final lane's trailing bytes are the padded
// region (zero-filled past the real key's end), the highest non-zero
// byte in the final lane marks the key's true last byte.
func lastNonZeroByte(lane uint64) int {
	for i := 7; i >= 0; i-- {
		if byte(lane>>(8*i)) != 0 {
			return i
		}
	}
	return -1
}

// Decode1 recovers the original byte slice (length 3..8) from a Key1.
func Decode1(k Key1) []byte {
	n := lastNonZeroByte(k.L0) + 1
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k.L0)
	return append([]byte(nil), buf[:n]...)
}

// Decode2 recovers the original byte slice (length 9..16) from a Key2.
func Decode2(k Key2) []byte {
	var lo [8]byte
	binary.LittleEndian.PutUint64(lo[:], k.L0)
	n := lastNonZeroByte(k.L1) + 1
	var hi [8]byte
	binary.LittleEndian.PutUint64(hi[:], k.L1)
	out := make([]byte, 0, 8+n)
	out = append(out, lo[:]...)
	out = append(out, hi[:n]...)
	return out
}

// Decode3 recovers the original byte slice (length 17..24) from a Key3.
func Decode3(k Key3) []byte {
	var lo, mid [8]byte
	binary.LittleEndian.PutUint64(lo[:], k.L0)
	binary.LittleEndian.PutUint64(mid[:], k.L1)
	n := lastNonZeroByte(k.L2) + 1
	var hi [8]byte
	binary.LittleEndian.PutUint64(hi[:], k.L2)
	out := make([]byte, 0, 16+n)
	out = append(out, lo[:]...)
	out = append(out, mid[:]...)
	out = append(out, hi[:n]...)
	return out
}
