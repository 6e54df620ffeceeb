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
	"math"
	"strconv"
	"sync"

	"github.com/assembler-0/aerosched/metrics"
	"github.com/assembler-0/aerosched/util/logutil"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// waitGPUnset marks a wait list whose grace-period dependency has not
// been recorded yet; it compares greater than any real sequence.
const waitGPUnset = math.MaxUint64

// CallRCU registers fn for invocation after a full grace period has
// elapsed. Ownership of fn transfers to the RCU subsystem until it runs.
// The call never blocks; the callback is appended to the registering
// CPU's new list.
func (s *State) CallRCU(cpu int, fn func()) error {
	if cpu < 0 || cpu >= s.numCPUs {
		return errors.Errorf("call_rcu: CPU %d out of range [0, %d)", cpu, s.numCPUs)
	}
	cb := &Callback{fn: fn}
	d := s.data[cpu]

	d.mu.Lock()
	*d.cbsTail = cb
	d.cbsTail = &cb.next
	d.mu.Unlock()

	metrics.RCUCallbacksQueued.WithLabelValues(strconv.Itoa(cpu)).Inc()
	d.poke()
	return nil
}

// processCallbacks advances the CPU's callback pipeline:
//  1. if the wait list's grace period has completed, detach it for
//     invocation;
//  2. if the wait list is empty and new callbacks exist, promote them to
//     the wait list, starting a grace period if none is in progress and
//     recording the sequence the list now depends on;
//  3. invoke every detached callback in registration order.
func (s *State) processCallbacks(cpu int) {
	d := s.data[cpu]

	d.mu.Lock()
	var ready *Callback
	if d.waitCbs != nil && s.completed.Load() >= d.waitGP {
		ready = d.waitCbs
		d.waitCbs = nil
		d.waitTail = &d.waitCbs
	}
	promote := d.waitCbs == nil && d.cbs != nil
	if promote {
		d.waitCbs = d.cbs
		d.waitTail = d.cbsTail
		d.cbs = nil
		d.cbsTail = &d.cbs
		d.waitGP = waitGPUnset
	}
	d.mu.Unlock()

	if promote {
		s.mu.Lock()
		s.startGPLocked()
		gp := s.gpSeq
		s.mu.Unlock()

		d.mu.Lock()
		d.waitGP = gp
		d.mu.Unlock()
	}

	invoked := 0
	for ready != nil {
		next := ready.next
		ready.fn()
		ready = next
		invoked++
	}
	if invoked > 0 {
		metrics.RCUCallbacksInvoked.WithLabelValues(strconv.Itoa(cpu)).Add(float64(invoked))
	}
}

// CheckCallbacks is invoked from the scheduler tick. A preemptible CPU is
// by definition outside any read-side critical section, so it reports a
// quiescent state; pending callbacks are then pushed through the
// pipeline.
func (s *State) CheckCallbacks(cpu int, preemptible bool) {
	if cpu < 0 || cpu >= s.numCPUs {
		return
	}
	if preemptible && s.data[cpu].readNesting.Load() == 0 {
		s.ReportQS(cpu)
	}
	s.processCallbacks(cpu)
	s.checkStall()
}

// checkStall counts ticks during which a grace period made no progress
// and logs once per stalled period.
func (s *State) checkStall() {
	stallTicks := s.stallTicks.Load()
	if stallTicks == 0 {
		return
	}
	s.mu.Lock()
	inProgress := s.gpSeq != s.completed.Load()
	gp := s.gpSeq
	s.mu.Unlock()
	if !inProgress {
		return
	}
	if s.ticksSinceGP.Inc() >= stallTicks && s.stallLogged.CompareAndSwap(false, true) {
		metrics.RCUStallWarnings.Inc()
		logutil.BgLogger().Warn("RCU grace period stall detected",
			zap.Uint64("gp-seq", gp),
			zap.Uint64("stall-ticks", stallTicks))
	}
}

// SetStallTicks changes the stall threshold at runtime; zero disables the
// warning.
func (s *State) SetStallTicks(ticks uint64) { s.stallTicks.Store(ticks) }

// Synchronize blocks until a full grace period has elapsed: it starts (or
// joins) a grace period, reports a quiescent state for the calling CPU
// context, and waits for the completed sequence to reach the target. A
// permanently offline CPU cannot deadlock the wait because OfflineCPU
// reports on the CPU's behalf and later periods exclude it.
func (s *State) Synchronize(cpu int) {
	// Associate this CPU's already-registered callbacks with a grace
	// period first; they must have run by the time Synchronize returns.
	s.processCallbacks(cpu)

	s.mu.Lock()
	s.startGPLocked()
	target := s.gpSeq
	s.mu.Unlock()

	// Blocking here is itself a quiescent state for this CPU context.
	s.ReportQS(cpu)

	s.mu.Lock()
	for s.completed.Load() < target {
		s.gpCond.Wait()
	}
	s.mu.Unlock()

	// The target period is over, so the callbacks promoted above are
	// ready; drain them before returning.
	s.processCallbacks(cpu)
}

// SynchronizeExpedited is an alias for Synchronize. The accelerated
// cross-CPU signaling path is reserved but not implemented.
func (s *State) SynchronizeExpedited(cpu int) {
	s.Synchronize(cpu)
}

// Barrier blocks until every callback registered before the call has been
// invoked. It requires the background threads (or a tick source) to be
// driving callback processing on every online CPU.
func (s *State) Barrier() {
	var wg sync.WaitGroup

	s.mu.Lock()
	online := s.online.Clone()
	s.mu.Unlock()

	online.ForEach(func(cpu int) {
		wg.Add(1)
		// Queued behind all earlier callbacks on this CPU, so it runs
		// only after they have.
		_ = s.CallRCU(cpu, wg.Done)
	})
	wg.Wait()
}
