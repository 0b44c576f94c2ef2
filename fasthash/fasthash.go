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

// Package fasthash computes the 64-bit hash used by every backend in
// this module. The design mixes two independent 32-bit CRC32C states
// (seeded 0xFFFFFFFF and 0x00000000) and concatenates them hi:lo. It
// is not keyed and is not intended to resist adversarial input — it
// exists purely to spread keys across open-addressed and bitmap-
// indexed tables quickly.
package fasthash

import (
	"encoding/binary"
	"hash/crc32"
	"unsafe"

	"golang.org/x/exp/constraints"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Integer is the set of primitive integer key types FastHash accepts
// directly.
type Integer interface {
	constraints.Integer
}

// state is the pair of CRC32C accumulators that make up FastHash's
// internal mixer.
type state struct {
	hi uint32
	lo uint32
}

func newState() state {
	return state{hi: 0xFFFFFFFF, lo: 0x00000000}
}

func (s *state) mix(chunk []byte) {
	s.hi = crc32.Update(s.hi, castagnoli, chunk)
	// the low state needs to diverge from the high one, or the two
	// accumulators would always agree and we'd only ever produce a
	// 32-bit-strength hash duplicated into both halves; running it one
	// byte out of phase is cheap and sufficient for a non-adversarial
	// mixer.
	if len(chunk) > 0 {
		s.lo = crc32.Update(s.lo, castagnoli, chunk[1:])
		s.lo = crc32.Update(s.lo, castagnoli, chunk[:1])
	}
}

func (s state) sum() uint64 {
	return uint64(s.hi)<<32 | uint64(s.lo)
}

// Hash mixes a single primitive integer value, zero-extended to 64
// bits, once into each CRC32C state.
func Hash[T Integer](v T) uint64 {
	var buf [8]byte
	x := uint64(v)
	if sz := unsafe.Sizeof(v); sz < 8 {
		x &= uint64(1)<<(8*sz) - 1
	}
	binary.LittleEndian.PutUint64(buf[:], x)
	s := newState()
	s.mix(buf[:])
	return s.sum()
}

// InlineLanes mixes every 64-bit lane of an InlineKey, in order, into
// both CRC32C states. Used by the inline package's Key1/Key2/Key3.
func InlineLanes(lanes []uint64) uint64 {
	s := newState()
	var buf [8]byte
	for _, lane := range lanes {
		binary.LittleEndian.PutUint64(buf[:], lane)
		s.mix(buf[:])
	}
	return s.sum()
}

// Bytes hashes an arbitrary byte slice, folding it 8 bytes at a time
// with a tail-safe fold for the final partial chunk.
func Bytes(b []byte) uint64 {
	s := newState()
	for len(b) >= 8 {
		s.mix(b[:8])
		b = b[8:]
	}
	if len(b) > 0 {
		var tail [8]byte
		copy(tail[:], b)
		s.mix(tail[:])
	}
	return s.sum()
}

// Ptr hashes n bytes starting at p without first materializing a Go
// slice header, for callers (arena-backed fallback keys) that only
// hold a raw pointer plus a length. p must point at n valid bytes.
func Ptr(p unsafe.Pointer, n int) uint64 {
	return Bytes(unsafe.Slice((*byte)(p), n))
}
