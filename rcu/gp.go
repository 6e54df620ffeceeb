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
	"github.com/assembler-0/aerosched/metrics"
	"github.com/assembler-0/aerosched/util/logutil"
	"go.uber.org/zap"
)

// startGPLocked starts a new grace period. Idempotent: a no-op while one
// is already in progress. Caller must hold s.mu.
//
// Node masks are initialized bottom-up to cover exactly the currently
// online CPUs; a node whose whole span is offline contributes no bit to
// its parent. Per-CPU qsPending flags are raised only after every node is
// initialized, so no report for the new sequence can race the setup.
func (s *State) startGPLocked() {
	if s.gpSeq != s.completed.Load() {
		return
	}
	s.gpSeq++
	gp := s.gpSeq
	s.ticksSinceGP.Store(0)
	s.stallLogged.Store(false)

	for _, level := range s.levels {
		for _, n := range level {
			n.mu.Lock()
			n.gpSeq = gp
			n.qsMask.ClearAll()
			n.hasOnline = false
			if n.level == 0 {
				for c := n.lo; c < n.hi; c++ {
					if s.online.Test(c) {
						n.qsMask.Set(uint(c - n.lo))
						n.hasOnline = true
					}
				}
			} else {
				for bit, child := range n.children {
					if child.hasOnline {
						n.qsMask.Set(uint(bit))
						n.hasOnline = true
					}
				}
			}
			n.mu.Unlock()
		}
	}

	if !s.root.hasOnline {
		// Nothing can report; the grace period is trivially complete.
		s.completeGPLocked(gp)
		return
	}

	for c := 0; c < s.numCPUs; c++ {
		if !s.online.Test(c) {
			continue
		}
		d := s.data[c]
		d.mu.Lock()
		d.gpSeq = gp
		d.qsPending = true
		d.mu.Unlock()
	}
}

// completeGPLocked marks gp complete and wakes all waiters. Caller must
// hold s.mu.
func (s *State) completeGPLocked(gp uint64) {
	if s.completed.Load() >= gp {
		return
	}
	s.completed.Store(gp)
	s.ticksSinceGP.Store(0)
	metrics.RCUGracePeriods.Inc()
	s.gpCond.Broadcast()
	for _, d := range s.data {
		d.poke()
	}
}

// ReportQS reports a quiescent state for the given CPU: the CPU attests
// that it is not inside a read-side critical section for the sequence it
// is tracking. Clearing the last bit of a node propagates a single
// bit-clear to its parent; reaching an empty root ends the grace period.
func (s *State) ReportQS(cpu int) {
	if cpu < 0 || cpu >= s.numCPUs {
		return
	}
	d := s.data[cpu]

	d.mu.Lock()
	if !d.qsPending {
		d.mu.Unlock()
		return
	}
	gp := d.gpSeq
	d.qsPending = false
	d.mu.Unlock()

	s.reportQSNode(d.leaf, uint(cpu-d.leaf.lo), gp)
}

// reportQSNode clears bit in n's mask for sequence gp and walks upward
// while masks empty out. Only the clearer of a node's last bit proceeds
// to the parent, so propagation happens exactly once per node per grace
// period. No two node locks are ever held at once.
func (s *State) reportQSNode(n *node, bit uint, gp uint64) {
	for {
		n.mu.Lock()
		if n.gpSeq != gp || !n.qsMask.Test(bit) {
			// Stale report, or someone already cleared this bit.
			n.mu.Unlock()
			return
		}
		n.qsMask.Clear(bit)
		if n.qsMask.Any() {
			n.mu.Unlock()
			return
		}
		n.completedSeq = gp
		parent := n.parent
		bit = n.parentBit
		n.mu.Unlock()
		if parent == nil {
			break
		}
		n = parent
	}

	s.mu.Lock()
	s.completeGPLocked(gp)
	s.mu.Unlock()
}

// OfflineCPU removes a CPU from the online set, reports a final quiescent
// state on its behalf so an in-flight grace period cannot stall on it, and
// hands its queued callbacks to another online CPU. New grace periods will
// not wait for this CPU.
func (s *State) OfflineCPU(cpu int) {
	if cpu < 0 || cpu >= s.numCPUs {
		return
	}
	s.mu.Lock()
	if !s.online.Test(cpu) {
		s.mu.Unlock()
		return
	}
	s.online.Clear(cpu)
	adopter := s.online.First()
	s.mu.Unlock()

	s.ReportQS(cpu)
	s.adoptCallbacks(cpu, adopter)

	logutil.BgLogger().Info("CPU went offline for RCU",
		zap.Int("cpu", cpu), zap.Int("adopter", adopter))
}

// adoptCallbacks splices every callback queued on src onto dst's new
// list. When no online CPU remains the callbacks are invoked inline:
// with all CPUs quiescent, any grace period they could need has elapsed.
func (s *State) adoptCallbacks(src, dst int) {
	d := s.data[src]

	d.mu.Lock()
	var orphans *Callback
	tail := &orphans
	if d.waitCbs != nil {
		*tail = d.waitCbs
		tail = d.waitTail
		d.waitCbs = nil
		d.waitTail = &d.waitCbs
	}
	if d.cbs != nil {
		*tail = d.cbs
		tail = d.cbsTail
		d.cbs = nil
		d.cbsTail = &d.cbs
	}
	d.mu.Unlock()

	if orphans == nil {
		return
	}
	if dst < 0 {
		for orphans != nil {
			next := orphans.next
			orphans.fn()
			orphans = next
		}
		return
	}

	t := s.data[dst]
	t.mu.Lock()
	*t.cbsTail = orphans
	t.cbsTail = tail
	t.mu.Unlock()
	t.poke()
}
