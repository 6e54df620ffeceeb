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
	"github.com/google/btree"
)

// dlItem orders the deadline sub-queue by absolute deadline, PID breaking
// ties.
type dlItem struct {
	deadline uint64
	pid      int64
	task     *Task
}

func dlLess(a, b dlItem) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.pid < b.pid
}

// dlRQ is the deadline sub-queue: earliest-deadline-first over a btree.
type dlRQ struct {
	tree     *btree.BTreeG[dlItem]
	nrQueued int
}

func newDLRQ() dlRQ {
	return dlRQ{tree: btree.NewG[dlItem](8, dlLess)}
}

// dlClass implements SCHED_DEADLINE with constant-bandwidth-server style
// accounting: each task reserves runtime per period, consumes the budget
// while running, and gets a fresh deadline and budget when its current
// deadline has passed.
type dlClass struct {
	s *Scheduler
}

func (d *dlClass) Name() string { return "deadline" }

// replenishIfStale hands out a new CBS instance when the task's absolute
// deadline is already behind the runqueue clock.
func (d *dlClass) replenishIfStale(rq *Runqueue, t *Task) {
	if t.dl.deadline <= rq.clock {
		t.dl.deadline = rq.clock + t.dl.dlPeriod
		t.dl.runtime = t.dl.dlRuntime
	}
}

func (d *dlClass) EnqueueTask(rq *Runqueue, t *Task, flags int) {
	if t.dl.onRQ {
		return
	}
	if flags&(EnqueueWakeup|EnqueueMove) != 0 {
		d.replenishIfStale(rq, t)
	}
	rq.dl.tree.ReplaceOrInsert(dlItem{deadline: t.dl.deadline, pid: t.PID, task: t})
	t.dl.onRQ = true
	rq.dl.nrQueued++
}

func (d *dlClass) DequeueTask(rq *Runqueue, t *Task, flags int) {
	if !t.dl.onRQ {
		return
	}
	rq.dl.tree.Delete(dlItem{deadline: t.dl.deadline, pid: t.PID})
	t.dl.onRQ = false
	rq.dl.nrQueued--
}

// YieldTask gives up the rest of this instance's budget; the task comes
// back with a fresh deadline on its next period.
func (d *dlClass) YieldTask(rq *Runqueue, t *Task) {
	d.UpdateCurr(rq)
	t.dl.runtime = 0
	t.dl.deadline = rq.clock + t.dl.dlPeriod
}

// CheckPreemptCurr: an earlier absolute deadline wins; any deadline task
// outranks every other class.
func (d *dlClass) CheckPreemptCurr(rq *Runqueue, t *Task) {
	curr := rq.curr
	if curr == nil || curr.IsIdle() || curr.class.id != classDeadline {
		rq.setNeedResched()
		return
	}
	if t.dl.deadline < curr.dl.deadline {
		rq.setNeedResched()
	}
}

func (d *dlClass) PickNextTask(rq *Runqueue) *Task {
	item, ok := rq.dl.tree.Min()
	if !ok {
		return nil
	}
	next := item.task
	d.DequeueTask(rq, next, 0)
	return next
}

func (d *dlClass) PutPrevTask(rq *Runqueue, t *Task) {
	d.UpdateCurr(rq)
	d.EnqueueTask(rq, t, 0)
}

func (d *dlClass) SetNextTask(rq *Runqueue, t *Task) {
	t.se.execStart = rq.clock
	t.se.prevSumExec = t.se.sumExec
}

// TaskTick charges the running task's budget and reschedules once the
// instance is exhausted, pushing the deadline one period out.
func (d *dlClass) TaskTick(rq *Runqueue, t *Task) {
	d.UpdateCurr(rq)
	if t.dl.runtime == 0 {
		t.dl.deadline += t.dl.dlPeriod
		t.dl.runtime = t.dl.dlRuntime
		rq.setNeedResched()
	}
}

func (d *dlClass) TaskFork(t *Task) {
	if t.dl.dlPeriod == 0 {
		t.dl.dlPeriod = DefaultDLPeriodNs
		t.dl.dlRuntime = DefaultDLRuntimeNs
	}
	t.dl.runtime = t.dl.dlRuntime
}

func (d *dlClass) SelectTaskRQ(t *Task, prevCPU int) int {
	if t.cpusAllowed.Test(prevCPU) {
		return prevCPU
	}
	return t.cpusAllowed.First()
}

func (d *dlClass) SwitchedFrom(rq *Runqueue, t *Task) {}

func (d *dlClass) SwitchedTo(rq *Runqueue, t *Task) {
	queued := t.dl.onRQ
	if queued {
		d.DequeueTask(rq, t, 0)
	}
	if t.dl.dlPeriod == 0 {
		t.dl.dlPeriod = DefaultDLPeriodNs
		t.dl.dlRuntime = DefaultDLRuntimeNs
	}
	t.dl.deadline = rq.clock + t.dl.dlPeriod
	t.dl.runtime = t.dl.dlRuntime
	if queued {
		d.EnqueueTask(rq, t, 0)
	}
	if queued || t == rq.curr {
		d.CheckPreemptCurr(rq, t)
	}
}

func (d *dlClass) PrioChanged(rq *Runqueue, t *Task, oldPrio int) {}

func (d *dlClass) UpdateCurr(rq *Runqueue) {
	curr := rq.curr
	if curr == nil || curr.class.id != classDeadline {
		return
	}
	now := rq.clock
	if now <= curr.se.execStart {
		return
	}
	delta := now - curr.se.execStart
	curr.se.execStart = now
	curr.se.sumExec += delta
	if delta >= curr.dl.runtime {
		curr.dl.runtime = 0
	} else {
		curr.dl.runtime -= delta
	}
}
