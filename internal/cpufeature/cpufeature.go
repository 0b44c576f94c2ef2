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

// Package cpufeature exposes the subset of golang.org/x/sys/cpu flags
// that the batch upsert path uses to pick a lane count. It exists so
// that exactly one place in the module pokes at cpu.X86/cpu.ARM64,
// mirroring the isolated feature-flag access in the teacher's
// internal/aes package.
package cpufeature

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// referenced so the flags are not considered dead by the linker when
// this package is built for an architecture that lacks them; mirrors
// internal/aes.offsX86HasAVX512VAES.
const offsX86HasAVX2 = unsafe.Offsetof(cpu.X86.HasAVX2) //lint:ignore U1000, kept for parity with upstream probe style

// AVX2 reports whether the host can execute 256-bit integer vector
// instructions. batch uses this to offer a LANES=4 loop.
func AVX2() bool {
	return cpu.X86.HasAVX2
}

// AVX512F reports whether the host can execute 512-bit vector
// instructions. batch uses this to offer a LANES=8 loop.
func AVX512F() bool {
	return cpu.X86.HasAVX512F
}

// Lanes returns the widest lane count batch should use on this host,
// one of 1, 2, 4, 8.
func Lanes() int {
	switch {
	case AVX512F():
		return 8
	case AVX2():
		return 4
	default:
		return 2
	}
}
