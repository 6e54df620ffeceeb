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

// Package sched implements the multi-class CPU scheduler of the AeroSync
// core: per-CPU runqueues, the deadline/real-time/fair/idle class chain,
// the wake-up and context-switch protocol, priority inheritance, and a
// topology-aware load balancer. Hardware is abstracted behind the Platform
// and Clock interfaces, so the whole scheduler runs as an in-memory model.
package sched

import "math/bits"

// TaskState is the lifecycle state of a task.
type TaskState int32

const (
	// TaskRunning covers both "currently on a CPU" and "queued, runnable".
	TaskRunning TaskState = iota
	// TaskInterruptible is a sleep that any wake-up ends.
	TaskInterruptible
	// TaskUninterruptible is a sleep ended only by the event being waited on.
	TaskUninterruptible
	// TaskZombie is terminal. The descriptor is reclaimed through RCU once
	// every lock-free reader that could still see it has finished.
	TaskZombie
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskInterruptible:
		return "interruptible"
	case TaskUninterruptible:
		return "uninterruptible"
	case TaskZombie:
		return "zombie"
	}
	return "unknown"
}

// Policy selects the scheduling discipline of a task.
type Policy int

const (
	PolicyNormal Policy = iota
	PolicyFIFO
	PolicyRR
	PolicyBatch
	PolicyIdle
	PolicyDeadline
)

// Enqueue and dequeue flags. Wakeup/Sleep mark the state-machine edges,
// Save/Restore bracket an in-place priority or class change, and Move
// brackets a cross-runqueue migration so the fair class can renormalize
// vruntime against the destination queue's origin.
const (
	EnqueueWakeup = 1 << iota
	EnqueueRestore
	EnqueueMove
)

const (
	DequeueSleep = 1 << iota
	DequeueSave
	DequeueMove
)

// Priority bands. Smaller numeric priority is more urgent. Deadline tasks
// sit below zero, real-time tasks in [0, MaxRTPrio), fair tasks above.
const (
	MaxRTPrio   = 100
	MaxPrio     = MaxRTPrio + 40
	DefaultPrio = MaxRTPrio + 20

	MinNice = -20
	MaxNice = 19

	// NiceZeroLoad is the load weight of a nice-0 task; all weight
	// arithmetic is relative to it.
	NiceZeroLoad = 1024

	deadlinePrio = -1
)

// Task flags.
const (
	flagKthread = 1 << iota
	flagIdle
)

// Deadline-class defaults, used when SetScheduler does not supply explicit
// CBS parameters.
const (
	DefaultDLPeriodNs  = 100 * 1000 * 1000
	DefaultDLRuntimeNs = 20 * 1000 * 1000
)

// niceToWeight maps nice values (-20..19, index 0..39) to load weights.
// Each step differs by ~25% of CPU share; index 20 is NiceZeroLoad.
var niceToWeight = [40]uint64{
	/* -20 */ 88761, 71755, 56483, 46273, 36291,
	/* -15 */ 29154, 23254, 18705, 14949, 11916,
	/* -10 */ 9548, 7620, 6100, 4904, 3906,
	/*  -5 */ 3121, 2501, 1991, 1586, 1277,
	/*   0 */ 1024, 820, 655, 526, 423,
	/*   5 */ 335, 272, 215, 172, 137,
	/*  10 */ 110, 87, 70, 56, 45,
	/*  15 */ 36, 29, 23, 18, 15,
}

// NiceToPrio converts a nice value into a static priority in the fair band.
func NiceToPrio(nice int) int {
	return DefaultPrio + nice
}

// PrioToNice is the inverse of NiceToPrio.
func PrioToNice(prio int) int {
	return prio - DefaultPrio
}

// WeightOf returns the load weight of a nice value, clamping out-of-range
// input to the table bounds.
func WeightOf(nice int) uint64 {
	if nice < MinNice {
		nice = MinNice
	}
	if nice > MaxNice {
		nice = MaxNice
	}
	return niceToWeight[nice-MinNice]
}

// mulDiv returns a*b/c using a 128-bit intermediate so slice and vruntime
// arithmetic cannot overflow for any table weight.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		// Quotient would not fit; saturate.
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// calcDeltaFair scales an elapsed real-time delta into virtual time:
// heavier tasks accrue vruntime more slowly.
func calcDeltaFair(delta, weight uint64) uint64 {
	if weight == NiceZeroLoad {
		return delta
	}
	return mulDiv(delta, NiceZeroLoad, weight)
}
