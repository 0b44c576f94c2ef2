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

package table1

import "testing"

func TestEmptyTable(t *testing.T) {
	tab := New[int]()
	if !tab.IsEmpty() || tab.Len() != 0 {
		t.Fatalf("new table should be empty")
	}
	if tab.Cap() != 65536 {
		t.Fatalf("Cap() = %d, want 65536", tab.Cap())
	}
}

func TestInsertGetCorners(t *testing.T) {
	cases := [][2]byte{{0, 0}, {0, 1}, {1, 0}, {255, 255}, {128, 64}}
	tab := New[int]()
	for i, c := range cases {
		v, created := tab.Insert(c[0], c[1])
		if !created {
			t.Fatalf("insert of (%d,%d) should be created", c[0], c[1])
		}
		*v = i
	}
	for i, c := range cases {
		v, ok := tab.Get(c[0], c[1])
		if !ok || *v != i {
			t.Fatalf("Get(%d,%d) = %v, %v, want %d, true", c[0], c[1], v, ok, i)
		}
	}
	if tab.Len() != len(cases) {
		t.Fatalf("Len() = %d, want %d", tab.Len(), len(cases))
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	tab := New[int]()
	v, _ := tab.Insert(10, 20)
	*v = 1
	v2, created := tab.Insert(10, 20)
	if created {
		t.Fatalf("second insert of the same key should not report created")
	}
	if *v2 != 1 {
		t.Fatalf("second insert returned a different value: %d", *v2)
	}
	if tab.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tab.Len())
	}
}

func TestIterateVisitsExactlyInsertedKeys(t *testing.T) {
	tab := New[int]()
	want := make(map[[2]byte]int)
	n := 0
	for b0 := 0; b0 < 256; b0 += 17 {
		for b1 := 0; b1 < 256; b1 += 23 {
			v, _ := tab.Insert(byte(b0), byte(b1))
			*v = n
			want[[2]byte{byte(b0), byte(b1)}] = n
			n++
		}
	}
	seen := make(map[[2]byte]bool)
	tab.Iterate(func(key [2]byte, v *int) bool {
		if seen[key] {
			t.Fatalf("key %v visited twice", key)
		}
		seen[key] = true
		if want[key] != *v {
			t.Fatalf("key %v = %d, want %d", key, *v, want[key])
		}
		return true
	})
	if len(seen) != len(want) {
		t.Fatalf("Iterate visited %d keys, want %d", len(seen), len(want))
	}
}

func TestIterateEarlyStop(t *testing.T) {
	tab := New[int]()
	for i := 0; i < 10; i++ {
		tab.Insert(byte(i), 0)
	}
	count := 0
	tab.Iterate(func(key [2]byte, v *int) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Fatalf("Iterate did not stop early, visited %d", count)
	}
}
