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

// cfsRQ is the fair-class sub-queue: tasks ordered by virtual runtime plus
// the load bookkeeping the slice computation and the balancer read.
type cfsRQ struct {
	timeline *timeline
	nrQueued int

	// loadWeight is the summed weight of the queued fair tasks; the slice
	// computation adds the running task's weight on top.
	loadWeight uint64

	// minVruntime is the monotonic floor new arrivals are placed at. It
	// never decreases and never exceeds the smallest queued vruntime.
	minVruntime uint64
}

// fairClass implements CFS: the ready set is ordered by vruntime, elapsed
// real time accrues as virtual time inversely proportional to load weight,
// and a task runs for a latency share proportional to its weight.
type fairClass struct {
	s *Scheduler
}

func (f *fairClass) Name() string { return "fair" }

// schedPeriod is the span in which every queued fair task should run once:
// the latency target, stretched to n*minGranularity when the queue is long
// enough that latency-based slices would drop below the granularity floor.
func (f *fairClass) schedPeriod(nrRunning int) uint64 {
	period := f.s.latencyNs
	if nr := uint64(nrRunning); nr > f.s.latencyNs/f.s.minGranularityNs {
		period = nr * f.s.minGranularityNs
	}
	return period
}

// sliceFor returns the ideal wall-clock slice of t: the period scaled by
// t's share of the total fair load on rq.
func (f *fairClass) sliceFor(rq *Runqueue, t *Task) uint64 {
	nr := rq.cfs.nrQueued
	total := rq.cfs.loadWeight
	if !t.se.onRQ {
		nr++
		total += t.se.weight
	}
	if curr := rq.curr; curr != nil && curr != t && curr.class.id == classFair && !curr.IsIdle() {
		nr++
		total += curr.se.weight
	}
	return mulDiv(f.schedPeriod(nr), t.se.weight, total)
}

// updateMinVruntime advances the monotonic floor toward the smallest
// vruntime still in play. Caller holds the rq lock.
func (f *fairClass) updateMinVruntime(rq *Runqueue) {
	min := rq.cfs.minVruntime
	cand := ^uint64(0)
	if curr := rq.curr; curr != nil && curr.class.id == classFair && !curr.IsIdle() {
		cand = curr.se.vruntime
	}
	if left := rq.cfs.timeline.leftmost(); left != nil && left.se.vruntime < cand {
		cand = left.se.vruntime
	}
	if cand != ^uint64(0) && cand > min {
		rq.cfs.minVruntime = cand
	}
}

func (f *fairClass) UpdateCurr(rq *Runqueue) {
	curr := rq.curr
	if curr == nil || curr.class.id != classFair || curr.IsIdle() {
		return
	}
	now := rq.clock
	if now <= curr.se.execStart {
		return
	}
	delta := now - curr.se.execStart
	curr.se.execStart = now
	curr.se.sumExec += delta
	curr.se.vruntime += calcDeltaFair(delta, curr.se.weight)
	f.updateMinVruntime(rq)
}

// placeEntity floors a waking task's vruntime at the queue minimum so a
// long sleeper cannot return with a huge credit and monopolize the CPU.
func (f *fairClass) placeEntity(rq *Runqueue, t *Task) {
	if t.se.vruntime < rq.cfs.minVruntime {
		t.se.vruntime = rq.cfs.minVruntime
	}
}

func (f *fairClass) EnqueueTask(rq *Runqueue, t *Task, flags int) {
	if t.se.onRQ {
		return
	}
	if flags&EnqueueMove != 0 {
		// Arriving from another runqueue: vruntime was made relative on
		// the way out, rebase it onto this queue's origin.
		t.se.vruntime += rq.cfs.minVruntime
	} else if flags&EnqueueWakeup != 0 {
		f.placeEntity(rq, t)
	}
	t.se.onRQ = true
	rq.cfs.timeline.insert(t)
	rq.cfs.nrQueued++
	rq.cfs.loadWeight += t.se.weight
}

func (f *fairClass) DequeueTask(rq *Runqueue, t *Task, flags int) {
	if !t.se.onRQ {
		return
	}
	rq.cfs.timeline.remove(t)
	t.se.onRQ = false
	rq.cfs.nrQueued--
	rq.cfs.loadWeight -= t.se.weight
	if flags&DequeueMove != 0 {
		// Departing for another runqueue: strip this queue's origin so
		// the destination can apply its own.
		t.se.vruntime -= rq.cfs.minVruntime
	}
	f.updateMinVruntime(rq)
}

// YieldTask charges the yielding task one full slice of virtual time so it
// goes to the back of the timeline.
func (f *fairClass) YieldTask(rq *Runqueue, t *Task) {
	f.UpdateCurr(rq)
	t.se.vruntime += calcDeltaFair(f.sliceFor(rq, t), t.se.weight)
}

// CheckPreemptCurr applies the wake-up granularity: the waking task must
// be far enough behind curr in virtual time before it is worth a switch.
func (f *fairClass) CheckPreemptCurr(rq *Runqueue, t *Task) {
	curr := rq.curr
	if curr == nil || curr.IsIdle() {
		rq.setNeedResched()
		return
	}
	if curr.class.id != classFair {
		// A higher class is running; the chain order already settled it.
		return
	}
	f.UpdateCurr(rq)
	gap := calcDeltaFair(f.s.wakeupGranularityNs, t.se.weight)
	if curr.se.vruntime > t.se.vruntime && curr.se.vruntime-t.se.vruntime > gap {
		rq.setNeedResched()
	}
}

func (f *fairClass) PickNextTask(rq *Runqueue) *Task {
	next := rq.cfs.timeline.leftmost()
	if next == nil {
		return nil
	}
	f.DequeueTask(rq, next, 0)
	return next
}

func (f *fairClass) PutPrevTask(rq *Runqueue, t *Task) {
	f.UpdateCurr(rq)
	f.EnqueueTask(rq, t, 0)
}

func (f *fairClass) SetNextTask(rq *Runqueue, t *Task) {
	t.se.execStart = rq.clock
	t.se.prevSumExec = t.se.sumExec
}

// TaskTick preempts curr once it has consumed its computed slice.
func (f *fairClass) TaskTick(rq *Runqueue, t *Task) {
	f.UpdateCurr(rq)
	if rq.cfs.nrQueued == 0 {
		return
	}
	if t.se.sumExec-t.se.prevSumExec > f.sliceFor(rq, t) {
		rq.setNeedResched()
	}
}

func (f *fairClass) TaskFork(t *Task) {
	t.se.weight = WeightOf(t.nice)
	if t.policy == PolicyIdle {
		t.se.weight = WeightOf(MaxNice)
	}
	t.se.vruntime = 0
	t.se.sumExec = 0
	t.se.prevSumExec = 0
}

// SelectTaskRQ prefers the previous CPU when it is idle (warm caches win),
// then any idle CPU in the affinity mask, then the least loaded one.
func (f *fairClass) SelectTaskRQ(t *Task, prevCPU int) int {
	if t.cpusAllowed.Test(prevCPU) && f.s.cpuIdle(prevCPU) {
		return prevCPU
	}
	best := -1
	var bestLoad uint64
	t.cpusAllowed.ForEach(func(cpu int) {
		if cpu >= len(f.s.rqs) {
			return
		}
		if best >= 0 && f.s.cpuIdle(best) {
			return
		}
		if f.s.cpuIdle(cpu) {
			best = cpu
			return
		}
		load := f.s.rqs[cpu].fairLoad()
		if best < 0 || load < bestLoad {
			best, bestLoad = cpu, load
		}
	})
	if best < 0 && t.cpusAllowed.Test(prevCPU) {
		return prevCPU
	}
	return best
}

func (f *fairClass) SwitchedFrom(rq *Runqueue, t *Task) {}

// SwitchedTo rebases a task entering the fair class at the queue minimum,
// as if it were a fresh wakeup. An already queued task is requeued around
// the mutation; the timeline key embeds the vruntime.
func (f *fairClass) SwitchedTo(rq *Runqueue, t *Task) {
	queued := t.se.onRQ
	if queued {
		f.DequeueTask(rq, t, 0)
	}
	t.se.weight = WeightOf(t.nice)
	t.se.vruntime = rq.cfs.minVruntime
	if queued {
		f.EnqueueTask(rq, t, 0)
	}
	if queued || t == rq.curr {
		f.CheckPreemptCurr(rq, t)
	}
}

func (f *fairClass) PrioChanged(rq *Runqueue, t *Task, oldPrio int) {
	neww := WeightOf(t.nice)
	if t.se.onRQ {
		rq.cfs.loadWeight -= t.se.weight
		rq.cfs.loadWeight += neww
	}
	t.se.weight = neww
	if t == rq.curr {
		rq.setNeedResched()
	}
}

// fairLoad is the balancer's view of the fair load on a runqueue: queued
// weight plus a running fair task's weight. Callers reading it without
// the lock treat it as an approximate snapshot.
func (rq *Runqueue) fairLoad() uint64 {
	load := rq.cfs.loadWeight
	if curr := rq.curr; curr != nil && curr.class != nil &&
		curr.class.id == classFair && !curr.IsIdle() {
		load += curr.se.weight
	}
	return load
}

// updateLoadAvg folds the instantaneous fair load into the exponential
// moving average busiestRQ consults. Caller holds the lock.
func (rq *Runqueue) updateLoadAvg() {
	rq.avgLoad = (rq.avgLoad*3 + rq.fairLoad()) / 4
}
