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

	"github.com/bits-and-blooms/bitset"
)

// rtRQ is the real-time sub-queue: one FIFO list per priority level plus a
// bitmap for constant-time highest-priority lookup. Level 0 is the most
// urgent.
type rtRQ struct {
	queues   [MaxRTPrio]*list.List
	bitmap   *bitset.BitSet
	nrQueued int
}

func newRTRQ() rtRQ {
	var r rtRQ
	for i := range r.queues {
		r.queues[i] = list.New()
	}
	r.bitmap = bitset.New(MaxRTPrio)
	return r
}

// rtClass implements SCHED_FIFO and SCHED_RR. FIFO tasks run until they
// block or a more urgent task arrives; RR tasks additionally rotate to the
// tail of their level when the round-robin quantum expires.
type rtClass struct {
	s *Scheduler
}

func (r *rtClass) Name() string { return "rt" }

func (r *rtClass) EnqueueTask(rq *Runqueue, t *Task, flags int) {
	if t.rt.onRQ {
		return
	}
	q := rq.rt.queues[t.prio]
	t.rt.elem = q.PushBack(t)
	t.rt.onRQ = true
	rq.rt.bitmap.Set(uint(t.prio))
	rq.rt.nrQueued++
}

func (r *rtClass) DequeueTask(rq *Runqueue, t *Task, flags int) {
	if !t.rt.onRQ {
		return
	}
	q := rq.rt.queues[t.prio]
	q.Remove(t.rt.elem)
	t.rt.elem = nil
	t.rt.onRQ = false
	if q.Len() == 0 {
		rq.rt.bitmap.Clear(uint(t.prio))
	}
	rq.rt.nrQueued--
}

// YieldTask sends the task to the tail of its priority level.
func (r *rtClass) YieldTask(rq *Runqueue, t *Task) {
	if !t.rt.onRQ {
		return
	}
	q := rq.rt.queues[t.prio]
	q.MoveToBack(t.rt.elem)
}

// CheckPreemptCurr: a strictly more urgent level preempts; an equal level
// never does (FIFO semantics within a level).
func (r *rtClass) CheckPreemptCurr(rq *Runqueue, t *Task) {
	curr := rq.curr
	if curr == nil || curr.IsIdle() || curr.class.id > classRealTime {
		rq.setNeedResched()
		return
	}
	if curr.class.id == classRealTime && t.prio < curr.prio {
		rq.setNeedResched()
	}
}

func (r *rtClass) PickNextTask(rq *Runqueue) *Task {
	lvl, ok := rq.rt.bitmap.NextSet(0)
	if !ok {
		return nil
	}
	front := rq.rt.queues[lvl].Front()
	if front == nil {
		return nil
	}
	next := front.Value.(*Task)
	r.DequeueTask(rq, next, 0)
	return next
}

func (r *rtClass) PutPrevTask(rq *Runqueue, t *Task) {
	r.UpdateCurr(rq)
	r.EnqueueTask(rq, t, 0)
}

func (r *rtClass) SetNextTask(rq *Runqueue, t *Task) {
	t.se.execStart = rq.clock
	t.se.prevSumExec = t.se.sumExec
}

// TaskTick rotates SCHED_RR tasks whose quantum ran out. FIFO tasks are
// never tick-preempted.
func (r *rtClass) TaskTick(rq *Runqueue, t *Task) {
	r.UpdateCurr(rq)
	if t.policy != PolicyRR {
		return
	}
	if t.rt.timeSlice > 0 {
		t.rt.timeSlice--
	}
	if t.rt.timeSlice > 0 {
		return
	}
	t.rt.timeSlice = r.s.rrTimesliceTicks
	// Only rotate when someone else waits at the same level.
	if rq.rt.queues[t.prio].Len() > 0 {
		rq.setNeedResched()
	}
}

func (r *rtClass) TaskFork(t *Task) {
	t.rt.timeSlice = r.s.rrTimesliceTicks
}

// SelectTaskRQ keeps RT tasks on their previous CPU when allowed; affinity
// decides otherwise. RT placement quality is the dispatcher's problem, not
// the balancer's.
func (r *rtClass) SelectTaskRQ(t *Task, prevCPU int) int {
	if t.cpusAllowed.Test(prevCPU) {
		return prevCPU
	}
	return t.cpusAllowed.First()
}

func (r *rtClass) SwitchedFrom(rq *Runqueue, t *Task) {}

func (r *rtClass) SwitchedTo(rq *Runqueue, t *Task) {
	t.rt.timeSlice = r.s.rrTimesliceTicks
	if t.onAnyRQ() {
		r.CheckPreemptCurr(rq, t)
	}
}

// PrioChanged runs after a priority change; queued tasks were already
// re-slotted by the save/restore requeue around the change.
func (r *rtClass) PrioChanged(rq *Runqueue, t *Task, oldPrio int) {
	if t == rq.curr && t.prio > oldPrio {
		// Deprioritized while running: someone else may now be more
		// urgent.
		rq.setNeedResched()
	}
}

func (r *rtClass) UpdateCurr(rq *Runqueue) {
	curr := rq.curr
	if curr == nil || curr.class.id != classRealTime {
		return
	}
	now := rq.clock
	if now <= curr.se.execStart {
		return
	}
	delta := now - curr.se.execStart
	curr.se.execStart = now
	curr.se.sumExec += delta
}
