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

// Package fallback implements the catch-all key encoding for byte
// strings that cannot be inlined: those 25 bytes or longer, and any
// key (of any length) whose last byte is zero. A Key is a pointer into
// an arena.Arena, the byte count, and the key's precomputed FastHash;
// it never copies the bytes itself, relying on its enclosing
// AdaptiveHashtable's Arena to own the backing storage. Route (see
// package inline) never sends a zero-length key here — the shortest
// fallback key is one byte (a zero byte) — so Ptr == nil is an
// unambiguous empty marker.
package fallback

import "unsafe"

// Key is empty (the table0 zero-sentinel) iff Ptr is nil.
type Key struct {
	Ptr  *byte
	Len  int32
	Hash uint64
}

// New builds a Key pointing at b, which must be owned by an
// arena.Arena that outlives every use of the returned Key (ordinarily
// the arena owned by the enclosing AdaptiveHashtable). b must be
// non-empty.
func New(b []byte, hash uint64) Key {
	return Key{Ptr: &b[0], Len: int32(len(b)), Hash: hash}
}

// Bytes reconstructs the key's byte slice.
func Bytes(k Key) []byte {
	if k.Ptr == nil {
		return nil
	}
	return unsafe.Slice(k.Ptr, int(k.Len))
}

// Equal compares two fallback keys by their referenced bytes, not by
// pointer identity: two keys built from equal content by separate
// Arena.Copy calls have different pointers and must still compare
// equal. It is the Equal function table0.Table needs for
// Key-keyed tables, since the == operator on Key would wrongly compare
// pointer identity instead of content — see DESIGN.md, "FallbackKey
// equality".
func Equal(a, b Key) bool {
	if a.Ptr == nil || b.Ptr == nil {
		return a.Ptr == b.Ptr
	}
	if a.Hash != b.Hash || a.Len != b.Len {
		return false
	}
	return string(Bytes(a)) == string(Bytes(b))
}
