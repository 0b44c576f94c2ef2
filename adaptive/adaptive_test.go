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

package adaptive

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/dchest/siphash"
)

// synthKey generates deterministic pseudorandom key material the same
// way vm/radix64_test.go derives synthetic hashes for its rows: feed a
// small counter into siphash and use the digest bytes as payload,
// rather than a hand-rolled byte pattern that risks accidentally
// hitting this module's own routing boundaries.
func synthKey(n int, seed byte) []byte {
	b := make([]byte, 0, n)
	var ctr uint64
	for len(b) < n {
		hi, lo := siphash.Hash128(uint64(seed), ctr, nil)
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[:8], hi)
		binary.LittleEndian.PutUint64(buf[8:], lo)
		b = append(b, buf[:]...)
		ctr++
	}
	b = b[:n]
	if n > 0 {
		b[n-1] |= 1 // avoid the trailing-zero fallback diversion unless asked for
	}
	return b
}

func TestEmptyTable(t *testing.T) {
	a := New[int]()
	if !a.IsEmpty() || a.Len() != 0 {
		t.Fatalf("new table should be empty")
	}
	if _, ok := a.Get([]byte("anything")); ok {
		t.Fatalf("Get on empty table found something")
	}
}

func TestInsertGetAcrossAllBackends(t *testing.T) {
	a := New[int]()
	lengths := []int{0, 1, 2, 3, 8, 9, 16, 17, 24, 25, 64}
	keys := make([][]byte, len(lengths))
	for i, n := range lengths {
		keys[i] = synthKey(n, byte(i*13))
		v, created := a.Insert(keys[i])
		if !created {
			t.Fatalf("insert of fresh key (len=%d) should be created", n)
		}
		*v = i
	}
	if a.Len() != len(keys) {
		t.Fatalf("Len() = %d, want %d", a.Len(), len(keys))
	}
	for i, k := range keys {
		v, ok := a.Get(k)
		if !ok || *v != i {
			t.Fatalf("Get(len=%d) = %v, %v, want %d, true", len(k), v, ok, i)
		}
	}
}

func TestTrailingZeroDivertsToFallback(t *testing.T) {
	a := New[int]()
	for _, n := range []int{1, 2, 3, 8, 16, 24} {
		key := synthKey(n, 5)
		key[n-1] = 0
		v, created := a.Insert(key)
		if !created {
			t.Fatalf("len=%d trailing-zero key should be a fresh insert", n)
		}
		*v = n
	}
	// these keys would have collided in table1/inline{1,2,3} with the
	// all-zero-tail-byte pattern if they had not all been routed to the
	// fallback backend; Len() must still count every one of them.
	if a.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", a.Len())
	}
	for _, n := range []int{1, 2, 3, 8, 16, 24} {
		key := synthKey(n, 5)
		key[n-1] = 0
		v, ok := a.Get(key)
		if !ok || *v != n {
			t.Fatalf("Get(len=%d, trailing zero) = %v, %v, want %d, true", n, v, ok, n)
		}
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	a := New[int]()
	key := synthKey(12, 1)
	v, _ := a.Insert(key)
	*v = 7
	v2, created := a.Insert(append([]byte(nil), key...))
	if created {
		t.Fatalf("second insert of an equal key (distinct slice) should not be created")
	}
	if *v2 != 7 {
		t.Fatalf("got %d, want 7", *v2)
	}
}

func TestIterateCoversEveryBackend(t *testing.T) {
	a := New[int]()
	r := rand.New(rand.NewSource(7))
	want := make(map[string]int)
	for len(want) < 300 {
		n := r.Intn(40)
		key := synthKey(n, byte(r.Intn(256)))
		if _, dup := want[string(key)]; dup {
			continue
		}
		v, _ := a.Insert(key)
		*v = len(key)
		want[string(key)] = len(key)
	}
	seen := make(map[string]bool)
	a.Iterate(func(key []byte, v *int) bool {
		s := string(key)
		if seen[s] {
			t.Fatalf("key %x visited twice", key)
		}
		seen[s] = true
		if want[s] != *v {
			t.Fatalf("key %x = %d, want %d", key, *v, want[s])
		}
		return true
	})
	if len(seen) != len(want) {
		t.Fatalf("Iterate visited %d keys, want %d", len(seen), len(want))
	}
}

func TestMergeResolvesCollisions(t *testing.T) {
	a := New[int]()
	b := New[int]()
	shared := synthKey(20, 9)
	va, _ := a.Insert(shared)
	*va = 1
	vb, _ := b.Insert(append([]byte(nil), shared...))
	*vb = 41
	vb2, _ := b.Insert(synthKey(5, 2))
	*vb2 = 1

	a.Merge(b, func(dst, src *int) { *dst += *src })

	if v, ok := a.Get(shared); !ok || *v != 42 {
		t.Fatalf("shared key after Merge = %v, %v, want 42, true", v, ok)
	}
	if v, ok := a.Get(synthKey(5, 2)); !ok || *v != 1 {
		t.Fatalf("b-only key after Merge = %v, %v, want 1, true", v, ok)
	}
}
