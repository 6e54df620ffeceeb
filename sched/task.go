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
	"container/list"
	"sync"

	"github.com/assembler-0/aerosched/cpumask"
	"go.uber.org/atomic"
)

// schedEntity carries the fair-class bookkeeping of a task.
type schedEntity struct {
	onRQ        bool
	execStart   uint64
	sumExec     uint64
	prevSumExec uint64
	vruntime    uint64
	weight      uint64
}

// rtEntity carries the real-time-class bookkeeping of a task.
type rtEntity struct {
	onRQ      bool
	elem      *list.Element
	timeSlice uint64
}

// dlEntity carries the deadline-class CBS bookkeeping of a task.
type dlEntity struct {
	onRQ     bool
	deadline uint64
	runtime  uint64
	// Reservation parameters: runtime budget per period.
	dlRuntime uint64
	dlPeriod  uint64
}

// Task is the descriptor of one schedulable thread of control.
//
// Scheduling fields are mutated only under the owning runqueue's lock;
// priority-inheritance fields only under piLock. The descriptor itself is
// reclaimed through RCU after the task turns zombie, so lock-free readers
// of the task registry may keep using a Task they already hold.
type Task struct {
	PID  int64
	Comm string

	state atomic.Int32
	flags int

	// preemptCount > 0 means Schedule refuses to switch this task out.
	preemptCount atomic.Int32

	// prio is the effective priority, normalPrio the policy-derived one
	// without inheritance, staticPrio the configured one.
	prio       int
	staticPrio int
	normalPrio int
	rtPriority int
	nice       int
	policy     Policy

	class *classDesc
	se    schedEntity
	rt    rtEntity
	dl    dlEntity

	cpusAllowed cpumask.Mask
	cpu         int

	// succHint biases the next pick on this task's CPU after a voluntary
	// yield. Consumed by at most one Schedule call.
	succHint *Task

	// piLock serializes wake-up attempts and all priority-inheritance
	// mutation for this task.
	piLock sync.Mutex
	// piWaiters holds tasks blocked on mutexes this task owns, ascending
	// by effective priority. Entries are back-references owned here.
	piWaiters *list.List
	// piBlockedOn is the mutex this task is currently sleeping on, the
	// link transitive boosting follows.
	piBlockedOn *Mutex

	// wakeCh carries the single wake-up token a sleeping task blocks on.
	wakeCh chan struct{}

	// Voluntary and involuntary context-switch counts.
	nvcsw  atomic.Uint64
	nivcsw atomic.Uint64

	// entry is the kthread body, nil for plain tasks.
	entry func()

	// reclaimed is flipped by the RCU callback that frees the descriptor.
	reclaimed atomic.Bool
}

// State returns the task's lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

func (t *Task) setState(s TaskState) { t.state.Store(int32(s)) }

// Prio returns the effective priority, including any inheritance boost.
func (t *Task) Prio() int { return t.prio }

// NormalPrio returns the policy-derived priority without boosting.
func (t *Task) NormalPrio() int { return t.normalPrio }

// Nice returns the task's nice value.
func (t *Task) Nice() int { return t.nice }

// Policy returns the task's scheduling policy.
func (t *Task) Policy() Policy { return t.policy }

// CPU returns the task's current (or last) CPU.
func (t *Task) CPU() int { return t.cpu }

// AffinityMask returns the set of CPUs the task may run on. The returned
// mask shares storage with the task; mutate it only through SetAffinity.
func (t *Task) AffinityMask() cpumask.Mask { return t.cpusAllowed }

// Vruntime returns the task's accumulated virtual runtime.
func (t *Task) Vruntime() uint64 { return t.se.vruntime }

// SumExec returns the task's accumulated real execution time.
func (t *Task) SumExec() uint64 { return t.se.sumExec }

// IsIdle reports whether this is a per-CPU idle task.
func (t *Task) IsIdle() bool { return t.flags&flagIdle != 0 }

// IsKthread reports whether the task was created by the kthread factory.
func (t *Task) IsKthread() bool { return t.flags&flagKthread != 0 }

// Switches returns the voluntary and involuntary context-switch counts.
func (t *Task) Switches() (voluntary, involuntary uint64) {
	return t.nvcsw.Load(), t.nivcsw.Load()
}

// PreemptDisable increments the task's preemption-disable nesting count.
func (t *Task) PreemptDisable() { t.preemptCount.Inc() }

// PreemptEnable decrements the nesting count. The caller is expected to
// invoke Schedule afterwards if a reschedule is pending.
func (t *Task) PreemptEnable() {
	if t.preemptCount.Dec() < 0 {
		panic("sched: unbalanced PreemptEnable")
	}
}

// Preemptible reports whether the task may be switched out.
func (t *Task) Preemptible() bool { return t.preemptCount.Load() == 0 }

// onAnyRQ reports whether the task sits in some class sub-queue.
func (t *Task) onAnyRQ() bool {
	return t.se.onRQ || t.rt.onRQ || t.dl.onRQ
}

// normalPrioFor derives the un-boosted priority from policy and settings.
func normalPrioFor(policy Policy, rtPriority, staticPrio int) int {
	switch policy {
	case PolicyDeadline:
		return deadlinePrio
	case PolicyFIFO, PolicyRR:
		return rtPriority
	default:
		return staticPrio
	}
}

// computeEffectivePrio applies the PI invariant: the effective priority is
// the minimum of the task's normal priority and its top waiter's priority.
// Caller holds t.piLock.
func (t *Task) computeEffectivePrio() int {
	prio := t.normalPrio
	if front := t.piWaiters.Front(); front != nil {
		if wp := front.Value.(*Task).prio; wp < prio {
			prio = wp
		}
	}
	return prio
}
