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
	"container/list"
	"sync"
)

// Mutex is the kernel mutex with priority inheritance. Blocking on it
// inserts the caller into the owner's waiter list and boosts the owner
// within the same operation, before the caller sleeps; Unlock hands the
// mutex to the most urgent waiter and restores the owner's priority.
type Mutex struct {
	s *Scheduler

	mu      sync.Mutex
	owner   *Task
	waiters *list.List
}

// NewMutex returns an unlocked PI mutex bound to the scheduler.
func (s *Scheduler) NewMutex() *Mutex {
	return &Mutex{s: s, waiters: list.New()}
}

// Owner returns the current owner, or nil when unlocked.
func (m *Mutex) Owner() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

func (m *Mutex) ownerSnapshot() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// TryLock acquires the mutex for t without blocking.
func (m *Mutex) TryLock(t *Task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != nil {
		return false
	}
	m.owner = t
	return true
}

// Lock acquires the mutex on behalf of the task running on cpu. On
// contention the caller is queued on the mutex, the owner is boosted, and
// the task sleeps uninterruptibly until Unlock hands the mutex over.
func (m *Mutex) Lock(cpu int) {
	t := m.s.rqs[cpu].curr
	if t == nil || t.IsIdle() {
		panic("sched: mutex Lock without a running task")
	}

	first := true
	for {
		m.mu.Lock()
		if m.owner == t {
			if first {
				panic("sched: recursive mutex lock")
			}
			// Handed over by Unlock.
			m.mu.Unlock()
			break
		}
		if m.owner == nil {
			m.owner = t
			m.mu.Unlock()
			break
		}
		owner := m.owner
		removeTask(m.waiters, t)
		insertByPrio(m.waiters, t)
		t.piLock.Lock()
		t.piBlockedOn = m
		t.piLock.Unlock()
		m.mu.Unlock()

		// Boost before sleeping: the priority rise must be visible the
		// moment the blocking insert is.
		m.s.piBoost(owner, t)

		first = false
		m.s.Sleep(cpu, TaskUninterruptible)
		<-t.wakeCh
	}

	t.piLock.Lock()
	t.piBlockedOn = nil
	t.piLock.Unlock()
	// A hand-over from Unlock raced with our own sleep transition; make
	// sure the scheduler sees the task runnable again.
	if t.State() != TaskRunning {
		m.s.WakeUp(t)
	}
}

// Unlock releases the mutex held by the task running on cpu. The most
// urgent waiter, if any, becomes the new owner and is woken; the old
// owner's priority boost is withdrawn.
func (m *Mutex) Unlock(cpu int) {
	t := m.s.rqs[cpu].curr

	m.mu.Lock()
	if m.owner != t {
		m.mu.Unlock()
		panic("sched: mutex unlocked by non-owner")
	}
	var next *Task
	if front := m.waiters.Front(); front != nil {
		next = front.Value.(*Task)
		m.waiters.Remove(front)
	}
	m.owner = next
	var remaining []*Task
	for e := m.waiters.Front(); e != nil; e = e.Next() {
		remaining = append(remaining, e.Value.(*Task))
	}
	m.mu.Unlock()

	if next != nil {
		m.s.piRelease(t, next)
		// The waiters still queued now block on the new owner; their
		// boost follows the mutex.
		for _, w := range remaining {
			m.s.piRelease(t, w)
			m.s.piBoost(next, w)
		}
		m.s.WakeUp(next)
	}
}
