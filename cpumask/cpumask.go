// Copyright 2026 AeroSync Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cpumask provides fixed-width CPU sets used for task affinity,
// the real-time priority bitmap and RCU quiescent-state tracking.
package cpumask

import (
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Mask is a set of CPU ids in [0, Width). The zero value is unusable,
// construct masks with New, Full or Of.
type Mask struct {
	bits  *bitset.BitSet
	width int
}

// New returns an empty mask covering width CPUs.
func New(width int) Mask {
	return Mask{bits: bitset.New(uint(width)), width: width}
}

// Full returns a mask with every CPU in [0, width) set.
func Full(width int) Mask {
	m := New(width)
	for i := 0; i < width; i++ {
		m.bits.Set(uint(i))
	}
	return m
}

// Of returns a mask covering width CPUs with exactly the given ids set.
func Of(width int, cpus ...int) Mask {
	m := New(width)
	for _, c := range cpus {
		m.Set(c)
	}
	return m
}

// Width returns the number of CPUs the mask covers.
func (m Mask) Width() int { return m.width }

// Set adds cpu to the mask. Out-of-range ids are ignored.
func (m Mask) Set(cpu int) {
	if cpu >= 0 && cpu < m.width {
		m.bits.Set(uint(cpu))
	}
}

// Clear removes cpu from the mask.
func (m Mask) Clear(cpu int) {
	if cpu >= 0 && cpu < m.width {
		m.bits.Clear(uint(cpu))
	}
}

// Test reports whether cpu is in the mask.
func (m Mask) Test(cpu int) bool {
	return cpu >= 0 && cpu < m.width && m.bits.Test(uint(cpu))
}

// Empty reports whether no CPU is set.
func (m Mask) Empty() bool { return m.bits.None() }

// Count returns the number of CPUs set.
func (m Mask) Count() int { return int(m.bits.Count()) }

// First returns the lowest CPU set, or -1 if the mask is empty.
func (m Mask) First() int {
	if i, ok := m.bits.NextSet(0); ok {
		return int(i)
	}
	return -1
}

// ForEach calls fn for every CPU set, in ascending order.
func (m Mask) ForEach(fn func(cpu int)) {
	for i, ok := m.bits.NextSet(0); ok; i, ok = m.bits.NextSet(i + 1) {
		fn(int(i))
	}
}

// Clone returns an independent copy of the mask.
func (m Mask) Clone() Mask {
	return Mask{bits: m.bits.Clone(), width: m.width}
}

// CopyFrom overwrites the mask contents with src.
func (m Mask) CopyFrom(src Mask) {
	m.bits.ClearAll()
	src.ForEach(func(cpu int) { m.Set(cpu) })
}

// ClearAll empties the mask.
func (m Mask) ClearAll() { m.bits.ClearAll() }

// SetAll sets every CPU in [0, Width).
func (m Mask) SetAll() {
	for i := 0; i < m.width; i++ {
		m.bits.Set(uint(i))
	}
}

// String renders the mask as a comma separated cpu list, for logging.
func (m Mask) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	m.ForEach(func(cpu int) {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(strconv.Itoa(cpu))
	})
	sb.WriteByte('}')
	return sb.String()
}
