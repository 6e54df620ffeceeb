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
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/assembler-0/aerosched/config"
	"github.com/assembler-0/aerosched/cpumask"
	"github.com/assembler-0/aerosched/metrics"
)

// doubleLock must acquire both locks whatever argument order the caller
// uses, and take a self-pair only once.
func TestDoubleLockOrder(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	a, b := s.RQ(0), s.RQ(1)

	for _, pair := range [][2]*Runqueue{{a, b}, {b, a}} {
		doubleLock(pair[0], pair[1])
		require.False(t, a.mu.TryLock())
		require.False(t, b.mu.TryLock())
		doubleUnlock(pair[0], pair[1])
		require.True(t, a.mu.TryLock())
		require.True(t, b.mu.TryLock())
		a.mu.Unlock()
		b.mu.Unlock()
	}

	doubleLock(a, a)
	require.False(t, a.mu.TryLock())
	doubleUnlock(a, a)
	require.True(t, a.mu.TryLock())
	a.mu.Unlock()
}

// The class chain dispatches deadline before real-time before fair, and
// falls back to the idle task when everything sleeps.
func TestDispatchOrder(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	f := s.NewTask("fair")
	r := s.NewTask("rt")
	require.NoError(t, s.SetScheduler(r, PolicyFIFO, 10))
	d := s.NewTask("dl")
	require.NoError(t, s.SetScheduler(d, PolicyDeadline, 0))

	s.WakeUp(f)
	s.WakeUp(r)
	s.WakeUp(d)

	s.Schedule(0)
	require.Same(t, d, s.RQ(0).Curr())
	s.Sleep(0, TaskInterruptible)
	require.Same(t, r, s.RQ(0).Curr())
	s.Sleep(0, TaskInterruptible)
	require.Same(t, f, s.RQ(0).Curr())
	s.Sleep(0, TaskInterruptible)
	require.True(t, s.RQ(0).Curr().IsIdle())
}

// A waking fair task prefers the CPU it last ran on when that CPU is
// idle, even when a lower-numbered CPU is idle too; when the previous CPU
// is busy it takes another idle one.
func TestWakeupPrefersIdlePrevCPU(t *testing.T) {
	s, _ := newTestScheduler(t, 2)

	a := s.NewTask("a")
	a.cpu = 1
	s.WakeUp(a)
	require.Equal(t, 1, a.CPU())
	s.Schedule(1)
	require.Same(t, a, s.RQ(1).Curr())

	b := s.NewTask("b")
	s.WakeUp(b)
	require.Equal(t, 0, b.CPU())
	s.Schedule(0)

	s.Sleep(1, TaskInterruptible)
	require.True(t, s.RQ(1).Curr().IsIdle())

	c := s.NewTask("c")
	s.WakeUp(c)
	require.Equal(t, 1, c.CPU())
}

func TestMoveTaskInvalidCPU(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	a := s.NewTask("a")
	s.WakeUp(a)

	rejected := metrics.SchedMigrationRejected.WithLabelValues(metrics.ReasonInvalidCPU)
	before := testutil.ToFloat64(rejected)
	require.ErrorIs(t, s.MoveTask(a, 9), ErrInvalidCPU)
	require.ErrorIs(t, s.MoveTask(a, -1), ErrInvalidCPU)
	require.Equal(t, 0, a.CPU())
	require.Equal(t, before+2, testutil.ToFloat64(rejected))
}

func TestMoveTaskAffinity(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	a := s.NewTask("a")
	require.NoError(t, s.SetAffinity(a, cpumask.Of(2, 0)))
	s.WakeUp(a)
	require.Equal(t, 0, a.CPU())

	require.ErrorIs(t, s.MoveTask(a, 1), ErrAffinity)
	require.Equal(t, 0, a.CPU())

	// A forced move goes through, with the violation counted.
	before := testutil.ToFloat64(metrics.SchedAffinityWarnings)
	require.NoError(t, s.ForceMoveTask(a, 1))
	require.Equal(t, 1, a.CPU())
	require.Equal(t, before+1, testutil.ToFloat64(metrics.SchedAffinityWarnings))
}

func TestMoveTaskRunningRejected(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	a := s.NewTask("a")
	s.WakeUp(a)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	require.ErrorIs(t, s.MoveTask(a, 1), ErrTaskRunning)
	require.Equal(t, 0, a.CPU())
}

func TestSetAffinityMigratesOffForbiddenCPU(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	a := s.NewTask("a")
	s.WakeUp(a)
	require.Equal(t, 0, a.CPU())

	require.ErrorIs(t, s.SetAffinity(a, cpumask.Of(2)), ErrEmptyMask)
	require.NoError(t, s.SetAffinity(a, cpumask.Of(2, 1)))
	require.Equal(t, 1, a.CPU())
}

// YieldTo hands the CPU straight to the hinted task ahead of the normal
// leftmost pick.
func TestYieldToHint(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := s.NewTask("a")
	b := s.NewTask("b")
	c := s.NewTask("c")
	s.WakeUp(a)
	s.WakeUp(b)
	s.WakeUp(c)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	s.YieldTo(0, c)
	require.Same(t, c, s.RQ(0).Curr())

	// Without a hint the queue order reasserts itself.
	s.Yield(0)
	require.Same(t, b, s.RQ(0).Curr())
}

// Exit unhooks the task immediately but frees the descriptor only after a
// grace period, driven here by ticks alone.
func TestExitReclaim(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := s.NewTask("a")
	s.WakeUp(a)
	pid := a.PID

	s.Exit(a)
	require.Equal(t, TaskZombie, a.State())
	require.Nil(t, s.FindTask(0, pid))
	require.False(t, a.reclaimed.Load())

	for i := 0; i < 5 && !a.reclaimed.Load(); i++ {
		clock.Advance(testTickNs)
		s.Tick(0)
	}
	require.True(t, a.reclaimed.Load())
}

func TestScheduleRefusesPreemptDisabled(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := s.NewTask("a")
	s.WakeUp(a)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	for i := 0; i < 2; i++ {
		clock.Advance(testTickNs)
		s.Tick(0)
	}
	b := s.NewTask("b")
	s.WakeUp(b)
	for i := 0; i < 4; i++ {
		clock.Advance(testTickNs)
		s.Tick(0)
	}

	a.PreemptDisable()
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	a.PreemptEnable()
	s.Schedule(0)
	require.Same(t, b, s.RQ(0).Curr())
}

// A kernel thread runs its body on the first wake-up and exits itself.
func TestKthreadLifecycle(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	ran := make(chan struct{})
	k := s.KthreadCreate("kworker", func() { close(ran) })
	require.True(t, k.IsKthread())
	require.Equal(t, 1, s.NumTasks())

	s.KthreadRun(k)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("kthread body never ran")
	}
	require.Eventually(t, func() bool {
		return k.State() == TaskZombie && s.NumTasks() == 0
	}, time.Second, time.Millisecond)
}

// Start spawns one RCU reclamation kthread per CPU; Stop winds them all
// down and unregisters them.
func TestStartStopWorkers(t *testing.T) {
	s, _ := newTestScheduler(t, 2)
	s.Start()
	require.Equal(t, 2, s.NumTasks())
	s.Stop()
	require.Equal(t, 0, s.NumTasks())
}

func TestSetSchedulerValidation(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := s.NewTask("a")

	require.Error(t, s.SetScheduler(a, PolicyFIFO, -1))
	require.Error(t, s.SetScheduler(a, PolicyFIFO, MaxRTPrio))
	require.Error(t, s.SetScheduler(a, PolicyNormal, 5))
	require.Error(t, s.SetScheduler(a, Policy(42), 0))

	require.NoError(t, s.SetScheduler(a, PolicyFIFO, 10))
	require.Equal(t, 10, a.Prio())
	require.Equal(t, PolicyFIFO, a.Policy())

	require.NoError(t, s.SetScheduler(a, PolicyNormal, 0))
	require.Equal(t, DefaultPrio, a.Prio())
}

// A wake-up landing after Sleep has marked the state but before Schedule
// switches the task out must restore runnability, not vanish.
func TestWakeupRacingSleepTransition(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := s.NewTask("racer")
	s.WakeUp(a)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	a.setState(TaskInterruptible)
	require.True(t, s.WakeUp(a))
	require.Equal(t, TaskRunning, a.State())

	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	// A wake of a task that is genuinely runnable stays a no-op.
	require.False(t, s.WakeUp(a))
}

// ScheduleTimeout marks the sleep before arming the timer, so even an
// immediately firing timer brings the task back.
func TestScheduleTimeoutImmediateFire(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := s.NewTask("napper")
	s.WakeUp(a)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	timer := s.ScheduleTimeout(0, time.Nanosecond)
	require.NotNil(t, timer)
	require.Eventually(t, func() bool {
		return a.State() == TaskRunning
	}, time.Second, time.Millisecond)

	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())
}

// ApplyConfig is the sysctl write path: dynamic tunables reach the running
// scheduler, structural items are rejected and left alone.
func TestApplyConfigDynamicTunables(t *testing.T) {
	orig := config.GetGlobalConfig()
	defer config.StoreGlobalConfig(orig)

	s, _ := newTestScheduler(t, 2)
	next, err := config.CloneConf(config.GetGlobalConfig())
	require.NoError(t, err)
	next.Scheduler.RRTimesliceTicks = 7
	next.Scheduler.LatencyNs = 12 * 1000 * 1000
	next.NumCPUs = 64

	accepted, rejected, err := s.ApplyConfig(next)
	require.NoError(t, err)
	require.Contains(t, accepted, "Scheduler.RRTimesliceTicks")
	require.Contains(t, accepted, "Scheduler.LatencyNs")
	require.Contains(t, rejected, "NumCPUs")

	require.Equal(t, uint64(7), s.rrTimesliceTicks)
	require.Equal(t, uint64(12*1000*1000), s.latencyNs)
	require.Equal(t, 2, s.NumCPUs())
	require.NotEqual(t, 64, config.GetGlobalConfig().NumCPUs)
}
