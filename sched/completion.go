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

// completeAll marks a completion that releases every present and future
// waiter.
const completeAll = ^uint64(0)

// Completion is a one-shot synchronization point built on the sleep/wake
// protocol: Wait consumes one done count, sleeping until Complete supplies
// it. Unlike the PI mutex the waiter queue is FIFO; completing does not
// transfer ownership of anything, so there is no priority to inherit.
type Completion struct {
	s *Scheduler

	mu      sync.Mutex
	done    uint64
	waiters *list.List
}

// NewCompletion returns a completion with no done counts.
func (s *Scheduler) NewCompletion() *Completion {
	return &Completion{s: s, waiters: list.New()}
}

// Done reports whether a Wait would return without sleeping.
func (c *Completion) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done > 0
}

// Complete supplies one done count and wakes the longest waiter.
func (c *Completion) Complete() {
	c.mu.Lock()
	if c.done != completeAll {
		c.done++
	}
	var next *Task
	if front := c.waiters.Front(); front != nil {
		next = front.Value.(*Task)
		c.waiters.Remove(front)
	}
	c.mu.Unlock()
	if next != nil {
		c.s.WakeUp(next)
	}
}

// CompleteAll releases every waiter and makes all future Waits return
// immediately.
func (c *Completion) CompleteAll() {
	c.mu.Lock()
	c.done = completeAll
	woken := make([]*Task, 0, c.waiters.Len())
	for e := c.waiters.Front(); e != nil; e = e.Next() {
		woken = append(woken, e.Value.(*Task))
	}
	c.waiters.Init()
	c.mu.Unlock()
	for _, w := range woken {
		c.s.WakeUp(w)
	}
}

// Wait blocks the task running on cpu until a done count is available and
// consumes it. The sleep is uninterruptible, ended only by a Complete.
func (c *Completion) Wait(cpu int) {
	t := c.s.rqs[cpu].curr
	if t == nil || t.IsIdle() {
		panic("sched: completion Wait without a running task")
	}

	for {
		c.mu.Lock()
		if c.done > 0 {
			if c.done != completeAll {
				c.done--
			}
			removeTask(c.waiters, t)
			c.mu.Unlock()
			return
		}
		removeTask(c.waiters, t)
		c.waiters.PushBack(t)
		c.mu.Unlock()

		c.s.Sleep(cpu, TaskUninterruptible)
		<-t.wakeCh
	}
}
