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

	"github.com/assembler-0/aerosched/util/logutil"
	"go.uber.org/zap"
)

// insertByPrio inserts t into l keeping ascending effective-priority
// order, so the front is always the most urgent waiter.
func insertByPrio(l *list.List, t *Task) *list.Element {
	for e := l.Front(); e != nil; e = e.Next() {
		if t.prio < e.Value.(*Task).prio {
			return l.InsertBefore(t, e)
		}
	}
	return l.PushBack(t)
}

// removeTask drops t from l if present.
func removeTask(l *list.List, t *Task) {
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(*Task) == t {
			l.Remove(e)
			return
		}
	}
}

// piBoost records w as a waiter of owner and raises owner's effective
// priority to the PI minimum. When the owner is itself blocked on another
// mutex the boost walks the owner chain, bounded by the configured depth
// so a waiter cycle cannot spin the walk forever.
func (s *Scheduler) piBoost(owner, w *Task) {
	cur, waiter := owner, w
	for depth := 0; cur != nil; depth++ {
		if depth >= s.piChainDepth {
			logutil.BgLogger().Warn("priority-inheritance chain too deep, boost truncated",
				zap.Int64("owner", cur.PID), zap.Int("depth", depth))
			return
		}
		cur.piLock.Lock()
		// Reposition rather than duplicate: on the transitive legs the
		// waiter already sits in this owner's list with its old priority.
		removeTask(cur.piWaiters, waiter)
		insertByPrio(cur.piWaiters, waiter)
		newPrio := cur.computeEffectivePrio()
		blockedOn := cur.piBlockedOn
		if newPrio == cur.prio {
			cur.piLock.Unlock()
			return
		}
		s.setPrio(cur, newPrio)
		cur.piLock.Unlock()

		if blockedOn == nil {
			return
		}
		waiter = cur
		cur = blockedOn.ownerSnapshot()
	}
}

// piRelease removes w from owner's waiter list and restores the owner's
// effective priority to the PI minimum over the remaining waiters.
func (s *Scheduler) piRelease(owner, w *Task) {
	owner.piLock.Lock()
	removeTask(owner.piWaiters, w)
	newPrio := owner.computeEffectivePrio()
	if newPrio != owner.prio {
		s.setPrio(owner, newPrio)
	}
	owner.piLock.Unlock()
}

// PIWaiters returns a snapshot of the task's waiter list in priority
// order, for diagnostics and tests.
func (t *Task) PIWaiters() []*Task {
	t.piLock.Lock()
	defer t.piLock.Unlock()
	out := make([]*Task, 0, t.piWaiters.Len())
	for e := t.piWaiters.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Task))
	}
	return out
}
