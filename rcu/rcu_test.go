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

package rcu

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/assembler-0/aerosched/metrics"
)

func TestReadSideNesting(t *testing.T) {
	s := newTestState(t, 1, 0)
	s.ReadLock(0)
	s.ReadLock(0)
	require.Equal(t, int32(2), s.data[0].readNesting.Load())
	s.ReadUnlock(0)
	s.ReadUnlock(0)
	require.Equal(t, int32(0), s.data[0].readNesting.Load())
	require.Panics(t, func() { s.ReadUnlock(0) })
}

// The tree layout covers every CPU exactly once per level.
func TestTreeLayout(t *testing.T) {
	s := newTestState(t, 4, 2)
	require.Len(t, s.levels, 2)
	require.Len(t, s.levels[0], 2)
	require.Len(t, s.levels[1], 1)
	require.Same(t, s.root, s.levels[1][0])
	require.Equal(t, 0, s.levels[0][0].lo)
	require.Equal(t, 2, s.levels[0][0].hi)
	require.Equal(t, 2, s.levels[0][1].lo)
	require.Equal(t, 4, s.levels[0][1].hi)

	// Single-CPU trees collapse to one node.
	s1 := newTestState(t, 1, 0)
	require.Len(t, s1.levels, 1)
	require.Same(t, s1.root, s1.leafFor(0))
}

// A quiescent state propagates one level per last-bit clear, and a second
// report from the same CPU in the same grace period changes nothing.
func TestQSPropagationExactlyOnce(t *testing.T) {
	s := newTestState(t, 4, 2)
	s.mu.Lock()
	s.startGPLocked()
	gp := s.gpSeq
	s.mu.Unlock()

	leaf0, leaf1, root := s.levels[0][0], s.levels[0][1], s.root
	require.Equal(t, uint(2), leaf0.qsMask.Count())
	require.Equal(t, uint(2), root.qsMask.Count())

	s.ReportQS(0)
	require.Equal(t, uint(1), leaf0.qsMask.Count())
	require.Equal(t, uint(2), root.qsMask.Count())

	s.ReportQS(0)
	require.Equal(t, uint(1), leaf0.qsMask.Count())
	require.Equal(t, uint(2), root.qsMask.Count())

	s.ReportQS(1)
	require.Equal(t, uint(0), leaf0.qsMask.Count())
	require.Equal(t, uint(1), root.qsMask.Count())
	require.Less(t, s.CompletedSeq(), gp)

	s.ReportQS(2)
	s.ReportQS(3)
	require.Equal(t, uint(0), leaf1.qsMask.Count())
	require.Equal(t, uint(0), root.qsMask.Count())
	require.Equal(t, gp, s.CompletedSeq())
}

// Synchronize may not return before callbacks registered earlier on the
// same CPU have been invoked.
func TestSynchronizeDrainsPriorCallbacks(t *testing.T) {
	s := newTestState(t, 1, 0)
	var invoked atomic.Int64
	require.NoError(t, s.CallRCU(0, func() { invoked.Inc() }))
	require.NoError(t, s.CallRCU(0, func() { invoked.Inc() }))

	s.Synchronize(0)
	require.Equal(t, int64(2), invoked.Load())

	// A second Synchronize with nothing queued still completes.
	s.Synchronize(0)
	require.Equal(t, int64(2), invoked.Load())
}

func TestCallRCUInvalidCPU(t *testing.T) {
	s := newTestState(t, 2, 0)
	require.Error(t, s.CallRCU(2, func() {}))
	require.Error(t, s.CallRCU(-1, func() {}))
}

// Callbacks run exactly once even when the pipeline is pushed repeatedly
// after completion.
func TestCallbackInvokedExactlyOnce(t *testing.T) {
	s := newTestState(t, 1, 0)
	var invoked atomic.Int64
	require.NoError(t, s.CallRCU(0, func() { invoked.Inc() }))

	for i := 0; i < 10; i++ {
		s.CheckCallbacks(0, true)
	}
	require.Equal(t, int64(1), invoked.Load())
}

// A CPU inside a read-side section or with preemption off never reports
// quiescence from the tick, so the grace period waits for it.
func TestQSGatedByReaderAndPreemption(t *testing.T) {
	s := newTestState(t, 1, 0)
	var invoked atomic.Int64
	require.NoError(t, s.CallRCU(0, func() { invoked.Inc() }))

	s.ReadLock(0)
	for i := 0; i < 5; i++ {
		s.CheckCallbacks(0, true)
	}
	require.Equal(t, int64(0), invoked.Load())

	s.ReadUnlock(0)
	for i := 0; i < 3; i++ {
		s.CheckCallbacks(0, false) // non-preemptible: still gated
	}
	require.Equal(t, int64(0), invoked.Load())

	s.CheckCallbacks(0, true)
	s.CheckCallbacks(0, true)
	require.Equal(t, int64(1), invoked.Load())
}

// Offlining hands queued callbacks to a surviving CPU and reports on the
// dead CPU's behalf, so Synchronize cannot stall on it; with every CPU
// offline the callbacks run inline.
func TestOfflineCPU(t *testing.T) {
	s := newTestState(t, 2, 0)
	var invoked atomic.Int64
	require.NoError(t, s.CallRCU(1, func() { invoked.Inc() }))

	s.OfflineCPU(1)
	s.Synchronize(0)
	require.Equal(t, int64(1), invoked.Load())

	require.NoError(t, s.CallRCU(0, func() { invoked.Inc() }))
	s.OfflineCPU(0)
	require.Equal(t, int64(2), invoked.Load())

	// With nothing online a new grace period is trivially complete.
	s.Synchronize(0)
}

// An in-flight grace period is not stalled by a CPU that goes offline
// after it started.
func TestOfflineMidGracePeriod(t *testing.T) {
	s := newTestState(t, 4, 2)
	s.mu.Lock()
	s.startGPLocked()
	gp := s.gpSeq
	s.mu.Unlock()

	s.ReportQS(0)
	s.ReportQS(1)
	s.ReportQS(2)
	require.Less(t, s.CompletedSeq(), gp)

	s.OfflineCPU(3)
	require.Equal(t, gp, s.CompletedSeq())
}

// Barrier returns only after every previously registered callback ran;
// the background threads drive the pipeline.
func TestBarrierWithWorkers(t *testing.T) {
	s := newTestState(t, 4, 2)
	s.Start()
	defer s.Stop()

	var invoked atomic.Int64
	for cpu := 0; cpu < 4; cpu++ {
		for i := 0; i < 8; i++ {
			require.NoError(t, s.CallRCU(cpu, func() { invoked.Inc() }))
		}
	}
	s.Barrier()
	require.Equal(t, int64(32), invoked.Load())
}

// A grace period that makes no progress trips the stall counter once.
func TestStallWarning(t *testing.T) {
	s := newTestState(t, 1, 0)
	s.SetStallTicks(2)
	require.NoError(t, s.CallRCU(0, func() {}))

	before := testutil.ToFloat64(metrics.RCUStallWarnings)
	s.ReadLock(0)
	for i := 0; i < 5; i++ {
		s.CheckCallbacks(0, true)
	}
	s.ReadUnlock(0)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RCUStallWarnings))

	// Progress resets the accounting; no second warning for this period.
	s.CheckCallbacks(0, true)
	s.CheckCallbacks(0, true)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RCUStallWarnings))
}

// The expedited path is an alias today; it must still drain callbacks
// queued before the call.
func TestSynchronizeExpeditedDrains(t *testing.T) {
	s := newTestState(t, 1, 0)
	var invoked atomic.Int64
	require.NoError(t, s.CallRCU(0, func() { invoked.Inc() }))

	s.SynchronizeExpedited(0)
	require.Equal(t, int64(1), invoked.Load())

	s.SynchronizeExpedited(0)
	require.Equal(t, int64(1), invoked.Load())
}
