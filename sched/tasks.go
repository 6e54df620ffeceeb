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
	"sync"

	"go.uber.org/atomic"
)

// taskRegistry is the all-tasks list, published copy-on-write so readers
// traverse it lock-free under an RCU read-side section. Writers serialize
// on mu, build a fresh slice and publish it atomically; a reader holding
// an old slice keeps seeing tasks already unlinked, which is exactly the
// window RCU-deferred reclamation covers.
type taskRegistry struct {
	mu   sync.Mutex
	list atomic.Pointer[[]*Task]
}

func (r *taskRegistry) register(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.snapshot()
	next := make([]*Task, len(old)+1)
	copy(next, old)
	next[len(old)] = t
	r.list.Store(&next)
}

func (r *taskRegistry) unregister(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.snapshot()
	next := make([]*Task, 0, len(old))
	for _, cur := range old {
		if cur != t {
			next = append(next, cur)
		}
	}
	r.list.Store(&next)
}

func (r *taskRegistry) snapshot() []*Task {
	if p := r.list.Load(); p != nil {
		return *p
	}
	return nil
}

// WalkTasks traverses the task registry inside an RCU read-side section on
// the given CPU, without blocking concurrent registration or exit. The
// visited list may be slightly stale. fn returning false stops the walk.
func (s *Scheduler) WalkTasks(cpu int, fn func(t *Task) bool) {
	s.rcuState.ReadLock(cpu)
	defer s.rcuState.ReadUnlock(cpu)
	for _, t := range s.taskRegistry.snapshot() {
		if !fn(t) {
			return
		}
	}
}

// FindTask returns the registered task with the given PID, or nil.
func (s *Scheduler) FindTask(cpu int, pid int64) *Task {
	var found *Task
	s.WalkTasks(cpu, func(t *Task) bool {
		if t.PID == pid {
			found = t
			return false
		}
		return true
	})
	return found
}

// NumTasks returns the registered task count.
func (s *Scheduler) NumTasks() int {
	return len(s.taskRegistry.snapshot())
}
