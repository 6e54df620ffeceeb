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
	rbt "github.com/ugurcsen/gods-generic/trees/redblacktree"
)

// timelineKey orders the fair ready set: primarily by vruntime, with the
// PID as tiebreaker so two tasks at the same vruntime get distinct keys.
type timelineKey struct {
	vruntime uint64
	pid      int64
}

func timelineKeyCompare(a, b timelineKey) int {
	switch {
	case a.vruntime < b.vruntime:
		return -1
	case a.vruntime > b.vruntime:
		return 1
	case a.pid < b.pid:
		return -1
	case a.pid > b.pid:
		return 1
	}
	return 0
}

// timeline is the vruntime-ordered ready set of the fair class.
type timeline struct {
	tree *rbt.Tree[timelineKey, *Task]
}

func newTimeline() *timeline {
	return &timeline{tree: rbt.NewWith[timelineKey, *Task](timelineKeyCompare)}
}

func (tl *timeline) insert(t *Task) {
	tl.tree.Put(timelineKey{vruntime: t.se.vruntime, pid: t.PID}, t)
}

func (tl *timeline) remove(t *Task) {
	tl.tree.Remove(timelineKey{vruntime: t.se.vruntime, pid: t.PID})
}

// leftmost returns the queued task with the smallest vruntime without
// removing it, or nil when the timeline is empty.
func (tl *timeline) leftmost() *Task {
	node, ok := tl.getMin(tl.tree.Root)
	if !ok {
		return nil
	}
	return node.Value
}

func (tl *timeline) getMin(node *rbt.Node[timelineKey, *Task]) (*rbt.Node[timelineKey, *Task], bool) {
	if node == nil {
		return nil, false
	}
	if node.Left == nil {
		return node, true
	}
	return tl.getMin(node.Left)
}

// forEach visits queued tasks in vruntime order until fn returns false.
// The balancer uses it to scan migration candidates; fn must not mutate
// the timeline.
func (tl *timeline) forEach(fn func(t *Task) bool) {
	it := tl.tree.Iterator()
	for it.Next() {
		if !fn(it.Value()) {
			return
		}
	}
}
