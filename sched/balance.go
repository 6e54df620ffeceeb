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
	"strconv"

	"github.com/assembler-0/aerosched/metrics"
	"github.com/assembler-0/aerosched/util/logutil"
	"go.uber.org/zap"
)

// rebalance pulls work toward cpu, walking its domain hierarchy outward.
// The idle flavor runs when the CPU is about to go idle: it ignores the
// imbalance threshold and stops as soon as it has pulled anything.
func (s *Scheduler) rebalance(cpu int, idle bool) {
	moved := 0
	for sd := s.rqs[cpu].sd; sd != nil; sd = sd.Parent {
		moved += s.balanceDomain(cpu, sd, idle)
		if idle && moved > 0 {
			break
		}
	}
	if moved > 0 {
		metrics.SchedBalancePasses.WithLabelValues(strconv.Itoa(cpu)).Inc()
	}
}

// balanceDomain finds the busiest sibling group at one topology level and
// pulls part of the imbalance from its busiest runqueue.
func (s *Scheduler) balanceDomain(cpu int, sd *Domain, idle bool) int {
	local := sd.localGroup(cpu)
	if local == nil {
		return 0
	}

	thisLoad := s.groupLoad(local)
	var busiest *Group
	var busiestLoad uint64
	for _, g := range sd.Groups {
		if g == local {
			continue
		}
		if load := s.groupLoad(g); load > busiestLoad {
			busiest, busiestLoad = g, load
		}
	}
	if busiest == nil || busiestLoad <= thisLoad {
		metrics.SchedBalanceFailures.WithLabelValues(
			strconv.Itoa(cpu), metrics.ReasonNoTasks).Inc()
		return 0
	}
	// Pull only past a 25% skew plus one nice-0 task of slack, so two
	// CPUs do not bounce a task back and forth. Idle CPUs take anything.
	if !idle && busiestLoad <= thisLoad+thisLoad/4+NiceZeroLoad {
		metrics.SchedBalanceFailures.WithLabelValues(
			strconv.Itoa(cpu), metrics.ReasonThreshold).Inc()
		return 0
	}

	src := s.busiestRQ(busiest, idle)
	if src == nil || src.cpu == cpu {
		metrics.SchedBalanceFailures.WithLabelValues(
			strconv.Itoa(cpu), metrics.ReasonNoTasks).Inc()
		return 0
	}

	imbalance := (busiestLoad - thisLoad) / 2
	return s.pullTasks(src, s.rqs[cpu], imbalance, idle)
}

// groupLoad sums the approximate fair load over a group's CPUs.
func (s *Scheduler) groupLoad(g *Group) uint64 {
	var load uint64
	g.Span.ForEach(func(cpu int) {
		if s.validCPU(cpu) {
			load += s.rqs[cpu].fairLoad()
		}
	})
	return load
}

// busiestRQ picks the most loaded runqueue in the group that has queued
// work to give away.
func (s *Scheduler) busiestRQ(g *Group, idle bool) *Runqueue {
	var busiest *Runqueue
	var max uint64
	g.Span.ForEach(func(cpu int) {
		if !s.validCPU(cpu) {
			return
		}
		rq := s.rqs[cpu]
		if rq.cfs.nrQueued == 0 {
			return
		}
		// A queue that was heavy until a moment ago keeps attracting
		// the balancer even if its instantaneous load just dipped.
		load := rq.fairLoad()
		if rq.avgLoad > load {
			load = rq.avgLoad
		}
		if busiest == nil || load > max {
			busiest, max = rq, load
		}
	})
	return busiest
}

// pullTasks migrates queued fair tasks from src to dst: at most the
// configured batch, at most the scan limit examined, and no more load than
// the requested imbalance, except that an idle puller always takes at
// least one task. The running task never moves; affinity is respected.
func (s *Scheduler) pullTasks(src, dst *Runqueue, imbalance uint64, idle bool) int {
	doubleLock(src, dst)
	defer doubleUnlock(src, dst)

	var candidates []*Task
	var plannedLoad uint64
	scanned := 0
	src.cfs.timeline.forEach(func(t *Task) bool {
		scanned++
		if scanned > s.balanceScanLimit || len(candidates) >= s.migrationBatch {
			return false
		}
		if !t.cpusAllowed.Test(dst.cpu) {
			return true
		}
		if plannedLoad >= imbalance && !(idle && len(candidates) == 0) {
			return false
		}
		candidates = append(candidates, t)
		plannedLoad += t.se.weight
		return true
	})

	moved := 0
	for _, t := range candidates {
		if err := s.moveTaskLocked(src, dst, t); err != nil {
			logutil.BgLogger().Warn("balance migration skipped",
				zap.Int64("pid", t.PID), zap.Error(err))
			continue
		}
		moved++
	}
	return moved
}
