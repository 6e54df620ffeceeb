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
	"testing"

	"github.com/stretchr/testify/require"
)

// newDLTask builds a deadline task with an explicit reservation.
func newDLTask(t *testing.T, s *Scheduler, comm string, runtimeNs, periodNs uint64) *Task {
	t.Helper()
	task := s.NewTask(comm)
	task.dl.dlRuntime = runtimeNs
	task.dl.dlPeriod = periodNs
	require.NoError(t, s.SetScheduler(task, PolicyDeadline, 0))
	return task
}

// Dispatch is earliest-deadline-first regardless of arrival order.
func TestDLEarliestDeadlineFirst(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := newDLTask(t, s, "a", 2*testTickNs, 10*testTickNs)
	b := newDLTask(t, s, "b", 2*testTickNs, 5*testTickNs)

	s.WakeUp(a)
	s.WakeUp(b)

	s.Schedule(0)
	require.Same(t, b, s.RQ(0).Curr())
	s.Sleep(0, TaskInterruptible)
	require.Same(t, a, s.RQ(0).Curr())
}

// Exhausting the runtime budget pushes the deadline one period out,
// refills the budget and yields the CPU to the next earliest deadline.
func TestDLBudgetExhaustion(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := newDLTask(t, s, "a", 2*testTickNs, 10*testTickNs)
	b := newDLTask(t, s, "b", 2*testTickNs, 15*testTickNs)

	s.WakeUp(a)
	s.WakeUp(b)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	tickAll(s, clock)
	require.Same(t, a, s.RQ(0).Curr())
	require.Equal(t, uint64(testTickNs), a.dl.runtime)

	// Second tick drains the budget: new instance, new deadline, and b's
	// 15ms deadline now beats a's 20ms one.
	tickAll(s, clock)
	require.Same(t, b, s.RQ(0).Curr())
	require.Equal(t, uint64(20*testTickNs), a.dl.deadline)
	require.Equal(t, uint64(2*testTickNs), a.dl.runtime)
}

// A waking task with an earlier deadline preempts the running one.
func TestDLWakeupPreempts(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := newDLTask(t, s, "a", 2*testTickNs, 15*testTickNs)
	s.WakeUp(a)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	c := newDLTask(t, s, "c", 2*testTickNs, 5*testTickNs)
	s.WakeUp(c)
	require.True(t, s.RQ(0).NeedResched())
	s.CheckPreempt(0)
	require.Same(t, c, s.RQ(0).Curr())
}

// Waking after the deadline has passed hands out a fresh CBS instance
// anchored at the current clock.
func TestDLReplenishOnStaleWakeup(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := newDLTask(t, s, "a", 2*testTickNs, 5*testTickNs)
	s.WakeUp(a)
	s.Schedule(0)
	s.Sleep(0, TaskInterruptible)

	for i := 0; i < 10; i++ {
		tickAll(s, clock)
	}
	s.WakeUp(a)
	require.Equal(t, uint64(15*testTickNs), a.dl.deadline)
	require.Equal(t, uint64(2*testTickNs), a.dl.runtime)
}
