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

func TestNiceWeightTable(t *testing.T) {
	require.Equal(t, uint64(NiceZeroLoad), WeightOf(0))
	require.Equal(t, uint64(88761), WeightOf(MinNice))
	require.Equal(t, uint64(15), WeightOf(MaxNice))
	// Clamping.
	require.Equal(t, WeightOf(MinNice), WeightOf(-100))
	require.Equal(t, WeightOf(MaxNice), WeightOf(100))
	// Each nice step is worth roughly 25% of CPU share.
	for nice := MinNice; nice < MaxNice; nice++ {
		require.Greater(t, WeightOf(nice), WeightOf(nice+1))
	}
}

// Two tasks of equal weight on an otherwise idle runqueue each get a
// slice of about half the latency target, and consuming it raises the
// need-resched flag.
func TestSliceTwoEqualTasks(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := s.NewTask("a")
	b := s.NewTask("b")
	s.WakeUp(a)
	s.WakeUp(b)
	s.Schedule(0)
	rq := s.RQ(0)
	require.Same(t, a, rq.Curr())

	f := s.classes[classFair].Class.(*fairClass)
	slice := f.sliceFor(rq, a)
	require.Equal(t, s.latencyNs/2, slice)

	// Burn through the slice one tick at a time; need-resched must be
	// raised once the slice is consumed.
	for i := 0; i < 3; i++ {
		require.False(t, rq.NeedResched())
		clock.Advance(testTickNs)
		s.Tick(0)
	}
	clock.Advance(testTickNs)
	s.Tick(0)
	require.True(t, rq.NeedResched())

	s.Schedule(0)
	require.Same(t, b, rq.Curr())
}

// The slice gets a floor of min granularity per task once the queue is
// long enough that latency/n would dip below it.
func TestSliceFloorLongQueue(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	f := s.classes[classFair].Class.(*fairClass)

	nPerLatency := int(s.latencyNs / s.minGranularityNs)
	require.Equal(t, s.latencyNs, f.schedPeriod(nPerLatency))
	long := nPerLatency + 4
	require.Equal(t, uint64(long)*s.minGranularityNs, f.schedPeriod(long))
}

func TestVruntimeMonotonic(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := s.NewTask("a")
	b := s.NewTask("b")
	s.SetNice(b, 5)
	s.WakeUp(a)
	s.WakeUp(b)
	s.Schedule(0)
	rq := s.RQ(0)

	lastA, lastB := a.Vruntime(), b.Vruntime()
	lastMin := rq.cfs.minVruntime
	for i := 0; i < 200; i++ {
		tickAll(s, clock)

		require.GreaterOrEqual(t, a.Vruntime(), lastA)
		require.GreaterOrEqual(t, b.Vruntime(), lastB)
		require.GreaterOrEqual(t, rq.cfs.minVruntime, lastMin)
		if left := rq.cfs.timeline.leftmost(); left != nil {
			require.LessOrEqual(t, rq.cfs.minVruntime, left.se.vruntime)
		}
		lastA, lastB = a.Vruntime(), b.Vruntime()
		lastMin = rq.cfs.minVruntime
	}
	// Both made progress, and equal vruntime progress means real CPU
	// time proportional to weight: the nice-0 task got more of it.
	require.Positive(t, a.Vruntime())
	require.Positive(t, b.Vruntime())
	require.Greater(t, a.SumExec(), b.SumExec())
}

// A task sleeping for a long time is placed no earlier than the queue
// minimum when it returns, so it cannot monopolize the CPU.
func TestWakeupPlacement(t *testing.T) {
	s, clock := newTestScheduler(t, 1)
	a := s.NewTask("a")
	s.WakeUp(a)
	s.Schedule(0)
	for i := 0; i < 20; i++ {
		clock.Advance(testTickNs)
		s.Tick(0)
	}
	rq := s.RQ(0)
	require.Positive(t, rq.cfs.minVruntime)

	b := s.NewTask("late-sleeper")
	s.WakeUp(b)
	require.Equal(t, rq.cfs.minVruntime, b.Vruntime())
}

// Moving a task away and back preserves its vruntime offset against the
// home queue when no accounting accrues during the trip.
func TestMigrationRoundTrip(t *testing.T) {
	s, clock := newTestScheduler(t, 2)
	a := s.NewTask("a")
	b := s.NewTask("b")
	b.se.vruntime = 50 * testTickNs
	s.WakeUp(a)
	s.WakeUp(b)

	c := s.NewTask("c")
	c.cpu = 1
	s.SetNice(c, -5)
	s.WakeUp(c)
	require.Equal(t, 1, c.CPU())

	s.Schedule(0)
	s.Schedule(1)
	rq0, rq1 := s.RQ(0), s.RQ(1)

	// Tick both CPUs in lockstep so neither queue clock goes stale; the
	// heavier task on cpu 1 drags that queue's origin behind cpu 0's.
	for i := 0; i < 10; i++ {
		clock.Advance(testTickNs)
		s.Tick(0)
		s.Tick(1)
	}
	require.NotEqual(t, rq0.cfs.minVruntime, rq1.cfs.minVruntime)

	min0 := rq0.cfs.minVruntime
	offset := b.Vruntime() - min0

	require.NoError(t, s.MoveTask(b, 1))
	require.Equal(t, 1, b.CPU())
	require.NoError(t, s.MoveTask(b, 0))
	require.Equal(t, 0, b.CPU())

	require.Equal(t, min0, rq0.cfs.minVruntime)
	require.Equal(t, offset, b.Vruntime()-rq0.cfs.minVruntime)
}

// A heavier task accrues virtual time more slowly for the same real time.
func TestCalcDeltaFair(t *testing.T) {
	require.Equal(t, uint64(1000), calcDeltaFair(1000, NiceZeroLoad))
	heavy := calcDeltaFair(1000, WeightOf(-10))
	light := calcDeltaFair(1000, WeightOf(10))
	require.Less(t, heavy, uint64(1000))
	require.Greater(t, light, uint64(1000))
}

func TestYieldAdvancesVruntime(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	a := s.NewTask("a")
	b := s.NewTask("b")
	s.WakeUp(a)
	s.WakeUp(b)
	s.Schedule(0)
	require.Same(t, a, s.RQ(0).Curr())

	before := a.Vruntime()
	s.Yield(0)
	require.Greater(t, a.Vruntime(), before)
	require.Same(t, b, s.RQ(0).Curr())
}
