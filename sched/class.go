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

// Class is the uniform operation set of one scheduling discipline. The
// four implementations are consulted in fixed precedence order; the first
// one whose PickNextTask offers a task wins.
//
// All methods except SelectTaskRQ are called with the runqueue lock held.
// PickNextTask removes the returned task from the class sub-queue; the
// running task is held in rq.curr only, and PutPrevTask re-inserts it when
// it is still runnable.
type Class interface {
	Name() string

	EnqueueTask(rq *Runqueue, t *Task, flags int)
	DequeueTask(rq *Runqueue, t *Task, flags int)
	YieldTask(rq *Runqueue, t *Task)

	// CheckPreemptCurr decides whether a task just enqueued on rq should
	// preempt rq.curr, and raises the need-resched flag if so.
	CheckPreemptCurr(rq *Runqueue, t *Task)

	PickNextTask(rq *Runqueue) *Task
	PutPrevTask(rq *Runqueue, t *Task)
	SetNextTask(rq *Runqueue, t *Task)

	// TaskTick performs periodic accounting for the running task and may
	// raise the need-resched flag.
	TaskTick(rq *Runqueue, t *Task)

	// TaskFork initializes class state of a newly created task before its
	// first enqueue.
	TaskFork(t *Task)

	// SelectTaskRQ picks a target CPU for a waking or forking task.
	// Called without any runqueue lock; a negative return declines, and
	// the caller falls back to the task's previous CPU.
	SelectTaskRQ(t *Task, prevCPU int) int

	SwitchedFrom(rq *Runqueue, t *Task)
	SwitchedTo(rq *Runqueue, t *Task)
	PrioChanged(rq *Runqueue, t *Task, oldPrio int)

	// UpdateCurr folds the time rq.curr has run since its last update
	// into its accounting.
	UpdateCurr(rq *Runqueue)
}

// Class chain indices, in dispatch precedence order.
const (
	classDeadline = iota
	classRealTime
	classFair
	classIdle
	nrClasses
)

// classDesc ties a Class implementation to its precedence slot.
type classDesc struct {
	id int
	Class
}

// classForPrio maps an effective priority onto the class chain: negative
// priorities are deadline, [0, MaxRTPrio) real-time, the rest fair. The
// idle class is reserved for per-CPU idle tasks; SCHED_IDLE tasks run
// under the fair class with the lowest weight.
func (s *Scheduler) classForPrio(prio int) *classDesc {
	switch {
	case prio < 0:
		return s.classes[classDeadline]
	case prio < MaxRTPrio:
		return s.classes[classRealTime]
	default:
		return s.classes[classFair]
	}
}
