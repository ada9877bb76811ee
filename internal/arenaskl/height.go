/*
 * Copyright 2017 Dgraph Labs, Inc. and Contributors
 * Modifications copyright (C) 2017 Andy Kimball and Contributors
 * Modifications copyright (C) 2026 The TrimDB Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package arenaskl

import (
	"math/bits"
	"math/rand/v2"
)

// randomHeight draws a tower height from a geometric distribution with
// P(height >= k) = 2^-(k-1): one plus the number of leading zero bits of a
// random word. The draw is clamped to one above the list's current height,
// so the list grows at most one level at a time, and to maxHeight.
//
// The global math/rand/v2 source is per-P, so concurrent inserters do not
// contend on it.
func randomHeight(listHeight uint32) uint32 {
	h := uint32(bits.LeadingZeros64(rand.Uint64())) + 1
	if limit := listHeight + 1; h > limit {
		h = limit
	}
	if h > maxHeight {
		h = maxHeight
	}
	return h
}

// raiseHeight raises the list's height watermark to at least h.
func (s *Skiplist) raiseHeight(h uint32) {
	listHeight := s.Height()
	for h > listHeight {
		if s.height.CompareAndSwap(listHeight, h) {
			// Successfully increased skiplist.height.
			break
		}
		listHeight = s.Height()
	}
}
