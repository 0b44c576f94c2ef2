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

package inline

import (
	"bytes"
	"testing"
)

func TestRouteByLength(t *testing.T) {
	cases := []struct {
		n    int
		want Backend
	}{
		{0, BackendTable1},
		{1, BackendTable1},
		{2, BackendTable1},
		{3, BackendInline1},
		{8, BackendInline1},
		{9, BackendInline2},
		{16, BackendInline2},
		{17, BackendInline3},
		{24, BackendInline3},
		{25, BackendFallback},
		{64, BackendFallback},
	}
	for _, c := range cases {
		key := make([]byte, c.n)
		for i := range key {
			key[i] = byte(i + 1) // keep the last byte non-zero
		}
		got := Route(key)
		if got != c.want {
			t.Errorf("Route(len=%d) = %v, want %v", c.n, got, c.want)
		}
	}
}

func TestRouteTrailingZeroAlwaysFallback(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8, 16, 24} {
		key := make([]byte, n)
		for i := range key {
			key[i] = byte(i + 1)
		}
		key[n-1] = 0
		if got := Route(key); got != BackendFallback {
			t.Errorf("Route(len=%d, trailing zero) = %v, want BackendFallback", n, got)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for n := 3; n <= 8; n++ {
		key := synthKey(n)
		got := Decode1(Encode1(key))
		if !bytes.Equal(got, key) {
			t.Errorf("Key1 round trip for len %d: got %x, want %x", n, got, key)
		}
	}
	for n := 9; n <= 16; n++ {
		key := synthKey(n)
		got := Decode2(Encode2(key))
		if !bytes.Equal(got, key) {
			t.Errorf("Key2 round trip for len %d: got %x, want %x", n, got, key)
		}
	}
	for n := 17; n <= 24; n++ {
		key := synthKey(n)
		got := Decode3(Encode3(key))
		if !bytes.Equal(got, key) {
			t.Errorf("Key3 round trip for len %d: got %x, want %x", n, got, key)
		}
	}
}

func synthKey(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 1)
	}
	b[n-1] |= 1 // guarantee a non-zero final byte
	return b
}

func TestHashIsStableAcrossEqualKeys(t *testing.T) {
	k := synthKey(5)
	if Hash1(Encode1(k)) != Hash1(Encode1(append([]byte(nil), k...))) {
		t.Fatalf("Hash1 not stable across equal but distinct slices")
	}
}
