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
	"github.com/assembler-0/aerosched/util/logutil"
	"go.uber.org/zap"
)

// idleClass is the tail of the dispatch chain. It holds no queue: its pick
// returns the runqueue's dedicated idle task, and it must always succeed.
type idleClass struct {
	s *Scheduler
}

func (i *idleClass) Name() string { return "idle" }

func (i *idleClass) EnqueueTask(rq *Runqueue, t *Task, flags int) {}
func (i *idleClass) DequeueTask(rq *Runqueue, t *Task, flags int) {}
func (i *idleClass) YieldTask(rq *Runqueue, t *Task)              {}

// CheckPreemptCurr: anything preempts idle.
func (i *idleClass) CheckPreemptCurr(rq *Runqueue, t *Task) {
	rq.setNeedResched()
}

// PickNextTask must never come back empty: a runqueue without an idle task
// cannot schedule at all, which is fatal for that CPU.
func (i *idleClass) PickNextTask(rq *Runqueue) *Task {
	if rq.idle == nil {
		logutil.BgLogger().Error("runqueue has no idle task, scheduling halted",
			zap.Int("cpu", rq.cpu))
		panic("sched: no class offered a task and no idle task exists")
	}
	return rq.idle
}

func (i *idleClass) PutPrevTask(rq *Runqueue, t *Task) {}

func (i *idleClass) SetNextTask(rq *Runqueue, t *Task) {
	t.se.execStart = rq.clock
}

func (i *idleClass) TaskTick(rq *Runqueue, t *Task) {
	// An idle CPU reschedules as soon as anything becomes runnable.
	if rq.cfs.nrQueued+rq.rt.nrQueued+rq.dl.nrQueued > 0 {
		rq.setNeedResched()
	}
}

func (i *idleClass) TaskFork(t *Task) {}

func (i *idleClass) SelectTaskRQ(t *Task, prevCPU int) int {
	return prevCPU
}

func (i *idleClass) SwitchedFrom(rq *Runqueue, t *Task)         {}
func (i *idleClass) SwitchedTo(rq *Runqueue, t *Task)           {}
func (i *idleClass) PrioChanged(rq *Runqueue, t *Task, old int) {}
func (i *idleClass) UpdateCurr(rq *Runqueue)                    {}
