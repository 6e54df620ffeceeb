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
	"sync"

	"golang.org/x/sys/cpu"
)

// Runqueue is the per-CPU container of runnable tasks. Its lock protects
// membership of every class sub-queue, curr, and the clocks. The running
// task is held in curr only; it sits in no sub-queue.
type Runqueue struct {
	mu  sync.Mutex
	cpu int

	curr *Task
	idle *Task

	cfs cfsRQ
	rt  rtRQ
	dl  dlRQ

	// clock is the runqueue's monotonic nanosecond clock, refreshed from
	// the scheduler clock at every tick and schedule entry.
	clock uint64
	// ticks counts timer ticks on this CPU, used for RR slices and for
	// staggering balance passes.
	ticks uint64

	// avgLoad is an exponential moving average of the fair load weight,
	// consumed by the balancer.
	avgLoad uint64

	needResched bool

	// sd is the lowest topology domain containing this CPU.
	sd *Domain

	nrSwitches   uint64
	nrMigrations uint64

	_ cpu.CacheLinePad
}

// CPU returns the runqueue's CPU index, the stable identifier the two-lock
// ordering uses.
func (rq *Runqueue) CPU() int { return rq.cpu }

// Curr returns the running task. Callers outside the scheduler should
// treat the result as a snapshot.
func (rq *Runqueue) Curr() *Task { return rq.curr }

// lock/unlock keep all acquisition inside this file so the ordering
// discipline stays auditable.
func (rq *Runqueue) lock()   { rq.mu.Lock() }
func (rq *Runqueue) unlock() { rq.mu.Unlock() }

// nrRunnable counts the runnable tasks associated with this runqueue,
// including a non-idle curr. Caller holds the lock.
func (rq *Runqueue) nrRunnable() int {
	n := rq.cfs.nrQueued + rq.rt.nrQueued + rq.dl.nrQueued
	if rq.curr != nil && !rq.curr.IsIdle() {
		n++
	}
	return n
}

// setNeedResched requests a reschedule at the CPU's next safe point.
// Caller holds the lock.
func (rq *Runqueue) setNeedResched() { rq.needResched = true }

// NeedResched reports and does not clear the pending-reschedule flag.
func (rq *Runqueue) NeedResched() bool {
	rq.lock()
	defer rq.unlock()
	return rq.needResched
}

// doubleLock acquires both runqueue locks in ascending CPU-index order so
// concurrent migrations can never deadlock. Locking a runqueue against
// itself takes the lock once.
func doubleLock(a, b *Runqueue) {
	switch {
	case a == b:
		a.lock()
	case a.cpu < b.cpu:
		a.lock()
		b.lock()
	default:
		b.lock()
		a.lock()
	}
}

// doubleUnlock releases what doubleLock acquired, in reverse order.
func doubleUnlock(a, b *Runqueue) {
	switch {
	case a == b:
		a.unlock()
	case a.cpu < b.cpu:
		b.unlock()
		a.unlock()
	default:
		a.unlock()
		b.unlock()
	}
}

// updateClock refreshes the runqueue clock from the scheduler clock.
// Caller holds the lock. The clock never moves backwards.
func (s *Scheduler) updateClock(rq *Runqueue) {
	if now := s.clock.Now(); now > rq.clock {
		rq.clock = now
	}
}
