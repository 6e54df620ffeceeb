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

package sched

import (
	"time"

	"go.uber.org/atomic"
)

// Platform is the narrow hardware surface the scheduler drives. The
// embedder supplies register/stack switching, address-space switching and
// cross-CPU reschedule signaling; the scheduler calls each hook at most
// the point the kernel would.
type Platform interface {
	// ContextSwitch saves prev's execution state and resumes next's.
	// Called exactly once per schedule decision that changes the running
	// task, with the runqueue lock released.
	ContextSwitch(prev, next *Task)

	// SwitchMM is called before ContextSwitch when the incoming and
	// outgoing tasks belong to different memory contexts. Kernel threads
	// borrow the outgoing context and never trigger it.
	SwitchMM(prev, next *Task)

	// SendRescheduleIPI forces a remote CPU to re-run its dispatch at the
	// next safe point.
	SendRescheduleIPI(cpu int)
}

// NopPlatform discards every hook. It is the default for model runs and
// tests that only observe scheduler state.
type NopPlatform struct{}

func (NopPlatform) ContextSwitch(prev, next *Task) {}
func (NopPlatform) SwitchMM(prev, next *Task)      {}
func (NopPlatform) SendRescheduleIPI(cpu int)      {}

// Clock supplies monotonic nanoseconds to the runqueue clocks.
type Clock interface {
	Now() uint64
}

// ManualClock is a Clock advanced explicitly, for deterministic tests and
// simulation.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock returns a ManualClock starting at zero.
func NewManualClock() *ManualClock { return &ManualClock{} }

func (c *ManualClock) Now() uint64 { return c.now.Load() }

// Advance moves the clock forward by d nanoseconds and returns the new
// reading.
func (c *ManualClock) Advance(d uint64) uint64 { return c.now.Add(d) }

// WallClock reads the host's monotonic clock.
type WallClock struct {
	start time.Time
}

// NewWallClock returns a WallClock anchored at the current instant.
func NewWallClock() *WallClock { return &WallClock{start: time.Now()} }

func (c *WallClock) Now() uint64 { return uint64(time.Since(c.start)) }
