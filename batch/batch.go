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

// Package batch implements the vectorized bulk insert-or-update path
// over a table0.Table keyed by a primitive integer: a client
// accumulates (key, delta) pairs and this package replaces one
// insert-per-key dispatch with a lane-parallel loop that processes
// LANES candidates per step, handling in-lane hash collisions with a
// conflict-detection reduction; stragglers keep probing in the same
// lane loop until each finds its slot.
//
// The teacher's own vectorized hash-aggregate path
// (vm/radix64.go: aggtable.writeRows) is a thin Go wrapper around
// generated assembly this retrieval pack does not include any .s file
// for. With no assembly to ground a gather/scatter implementation on
// and no way to run the toolchain to validate one, Upserter realizes the
// specified *algorithm* — including the lane compaction/refill
// discipline and the leftmost-wins conflict resolution — as a portable
// struct-of-arrays loop, following writeRows' own abort-bitmask
// straggler-draining pattern (`step := 16 - bits.LeadingZeros16(abort)`)
// rather than true gather/scatter instructions. See DESIGN.md.
package batch

import (
	"github.com/SnellerInc/hashtable/fasthash"
	"github.com/SnellerInc/hashtable/internal/cpufeature"
	"github.com/SnellerInc/hashtable/table0"
)

// DefaultBufferSize is the pending-buffer capacity an Upserter flushes at,
// per spec.md section 4.6's "1024 or 2048" sizing.
const DefaultBufferSize = 1024

// Lanes picks a lane count (1, 2, 4, or 8) from the host's vector
// width, via internal/cpufeature. Portable Go gets no throughput
// benefit from a wider struct-of-arrays loop, but the lane count still
// governs how many candidates upsertVector carries concurrently (and
// so how often conflictSuppress has work to do), so callers that want
// to exercise a specific width (e.g. the spec's LANES=4 equivalence
// scenario) should pass it explicitly to New instead of relying on
// this helper.
func Lanes() int {
	return cpufeature.Lanes()
}

type pending[K any, D any] struct {
	key   K
	delta D
}

// Upserter batches (key, delta) pairs destined for a single
// table0.Table and flushes them through the vectorized upsert loop.
type Upserter[K fasthash.Integer, D any, V any] struct {
	table  *table0.Table[K, V]
	insert func(delta D) V
	update func(old V, delta D) V
	lanes  int
	bufcap int

	buf []pending[K, D]
}

// New returns an Upserter over t. insert produces the initial value
// for a brand-new key from its first delta; update folds a later
// delta into an existing value. lanes must be 1, 2, 4, or 8.
func New[K fasthash.Integer, D any, V any](t *table0.Table[K, V], insert func(D) V, update func(V, D) V, lanes int) *Upserter[K, D, V] {
	switch lanes {
	case 1, 2, 4, 8:
	default:
		lanes = 1
	}
	return &Upserter[K, D, V]{
		table:  t,
		insert: insert,
		update: update,
		lanes:  lanes,
		bufcap: DefaultBufferSize,
	}
}

// Add accumulates one (key, delta) pair, flushing automatically once
// the pending buffer reaches its bound.
func (u *Upserter[K, D, V]) Add(key K, delta D) {
	u.buf = append(u.buf, pending[K, D]{key: key, delta: delta})
	if len(u.buf) >= u.bufcap {
		u.Flush()
	}
}

// Flush inserts any zero-keyed pairs through the scalar Insert, runs the
// vector loop over the rest of what is pending, and clears the buffer. Load-factor
// maintenance happens once here, up front, so the inner loop never
// triggers a resize (spec.md section 4.6).
func (u *Upserter[K, D, V]) Flush() {
	if len(u.buf) == 0 {
		return
	}
	u.table.EnsureCapacity(len(u.buf))

	// table0 routes the zero-valued key to its dedicated escape slot
	// rather than the probed array (see table0.Table's doc comment), so
	// the vector loop below — which gathers/scatters directly into the
	// probed slot array by index — must never see one. There are at
	// most a handful of these per flush in practice; a scalar Insert
	// does the same escape-slot bookkeeping Get/Insert already do.
	var zero K
	rest := u.buf[:0]
	for _, p := range u.buf {
		if p.key == zero {
			v, created := u.table.Insert(p.key)
			if created {
				*v = u.insert(p.delta)
			} else {
				*v = u.update(*v, p.delta)
			}
			continue
		}
		rest = append(rest, p)
	}

	upsertVector(u.table, u.insert, u.update, rest, u.lanes)
	u.buf = u.buf[:0]
}

// lane is the struct-of-arrays state for one vector step: idx is the
// current probe index, key/delta are the candidate this lane is
// carrying, and live is "this lane has not yet found its slot".
type lane[K any, D any] struct {
	idx   uint64
	key   K
	delta D
	live  bool
}

// upsertVector runs spec.md section 4.6's loop: compact finished lanes
// to the front, refill them from input, gather the table's current
// occupant at each live lane's idx, classify as empty/match/miss,
// suppress all but the leftmost lane contending for a given idx this
// step, commit claims and updates, and advance the probe index for
// every unsuppressed lane that neither claimed nor matched. There is
// no separate scalar pass: once input runs out, the lanes still live
// keep stepping through this same loop until each has claimed or
// matched.
func upsertVector[K fasthash.Integer, D any, V any](t *table0.Table[K, V], insertFn func(D) V, updateFn func(V, D) V, input []pending[K, D], n int) {
	lanes := make([]lane[K, D], n)
	pos := 0
	claimed := 0

	anyLive := func() bool {
		for i := range lanes {
			if lanes[i].live {
				return true
			}
		}
		return false
	}

	for pos < len(input) || anyLive() {
		compact(lanes)
		pos = refill(lanes, input, pos, t)

		slots := t.Slots()
		mask := t.Mask()

		isEmpty := make([]bool, n)
		isMatch := make([]bool, n)
		for i := range lanes {
			if !lanes[i].live {
				continue
			}
			s := &slots[lanes[i].idx]
			isEmpty[i] = !s.Used
			isMatch[i] = s.Used && s.Key == lanes[i].key
		}

		suppressed := conflictSuppress(lanes)

		for i := range lanes {
			l := &lanes[i]
			if !l.live || suppressed[i] {
				continue
			}
			switch {
			case isEmpty[i]:
				s := &slots[l.idx]
				s.Used = true
				s.Key = l.key
				s.Value = insertFn(l.delta)
				claimed++
				l.live = false
			case isMatch[i]:
				s := &slots[l.idx]
				s.Value = updateFn(s.Value, l.delta)
				l.live = false
			default:
				l.idx = (l.idx + 1) & mask
			}
		}
		// suppressed lanes retry the same idx next step: the winning
		// lane's write (or the fact that it is still contending) is
		// exactly what they need to observe before deciding whether to
		// advance. Advancing them unconditionally (as a literal lane-
		// order-agnostic reading of spec.md section 4.6 step 8 might
		// suggest) would let two lanes carrying the same key both end
		// up claiming distinct slots for it, which violates "each key
		// appears at most once" — see DESIGN.md.
	}

	t.AddLen(claimed)
}

// compact moves every finished lane (live == false) to the front,
// preserving the relative order of the still-live lanes at the back —
// spec.md section 4.6 step 1.
func compact[K any, D any](lanes []lane[K, D]) {
	back := len(lanes)
	for i := len(lanes) - 1; i >= 0; i-- {
		if lanes[i].live {
			back--
			lanes[back], lanes[i] = lanes[i], lanes[back]
		}
	}
}

// refill loads fresh (key, delta) pairs from input into the freed
// front lanes left by compact, computes each one's home index, and
// marks it live — spec.md section 4.6 step 2. Returns the new input
// cursor.
func refill[K fasthash.Integer, D any, V any](lanes []lane[K, D], input []pending[K, D], pos int, t *table0.Table[K, V]) int {
	for i := range lanes {
		if lanes[i].live {
			continue
		}
		if pos >= len(input) {
			break
		}
		p := input[pos]
		pos++
		lanes[i] = lane[K, D]{
			idx:   t.Hash(p.key) & t.Mask(),
			key:   p.key,
			delta: p.delta,
			live:  true,
		}
	}
	return pos
}

// conflictSuppress implements the leftmost-wins reduction from
// spec.md section 4.6 step 5: among the live lanes, the first (lowest
// index) lane claiming a given idx is the one allowed to act this
// step; every later live lane sharing that idx is suppressed. A real
// SIMD implementation gets this via the rotated-comparison sequences
// spec.md documents for LANES=2/4/8 (one comparison for 2 lanes, two
// for 4, four for 8); a scalar pass over at most 8 lanes produces the
// identical leftmost-wins result spec.md section 9 says the rotations
// must reproduce, without needing real vector compare/permute ops.
func conflictSuppress[K any, D any](lanes []lane[K, D]) []bool {
	suppressed := make([]bool, len(lanes))
	seen := make(map[uint64]bool, len(lanes))
	for i := range lanes {
		if !lanes[i].live {
			continue
		}
		if seen[lanes[i].idx] {
			suppressed[i] = true
			continue
		}
		seen[lanes[i].idx] = true
	}
	return suppressed
}
