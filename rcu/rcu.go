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

// Package rcu implements a hierarchical Read-Copy-Update engine.
//
// A grace period is identified by a monotonically increasing sequence
// number. It is in progress while the sequence exceeds the last completed
// sequence, and complete once every leaf (CPU) and every internal node up
// to the root has reported quiescence for it. Callbacks registered with
// CallRCU are invoked only after a full grace period, which makes it safe
// to reclaim objects that lock-free readers may still hold references to.
//
// Quiescent states are reported from the scheduler tick via
// CheckCallbacks; per-CPU background threads drain ready callbacks.
package rcu

import (
	"strconv"
	"sync"
	"time"

	"github.com/assembler-0/aerosched/config"
	"github.com/assembler-0/aerosched/cpumask"
	"github.com/assembler-0/aerosched/util"
	"github.com/assembler-0/aerosched/util/logutil"
	"github.com/bits-and-blooms/bitset"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// maxLevels bounds the depth of the node tree. With the default fanout of
// 16 this covers 16^4 CPUs, far beyond anything the model needs.
const maxLevels = 4

// Callback is a deferred-reclamation request. The function is owned by the
// RCU subsystem from registration until it is invoked, exactly once, after
// a full grace period.
type Callback struct {
	fn   func()
	next *Callback
}

// node covers a contiguous range of CPUs (leaves) or of lower nodes
// (internal nodes).
type node struct {
	mu           sync.Mutex
	gpSeq        uint64 // sequence this node is tracking
	completedSeq uint64 // last sequence this node finished
	qsMask       *bitset.BitSet

	parent    *node
	parentBit uint // this node's bit in parent.qsMask
	children  []*node
	level     int // 0 = leaf
	lo, hi    int // covered CPU range [lo, hi)

	// hasOnline is only touched during grace-period initialization,
	// which is serialized by State.mu.
	hasOnline bool
}

// cpuData is the per-CPU RCU record.
type cpuData struct {
	mu        sync.Mutex
	cpu       int
	leaf      *node
	qsPending bool   // this CPU still owes a report for gpSeq
	gpSeq     uint64 // sequence this CPU owes a quiescent state for
	waitGP    uint64 // sequence the wait list depends on

	// Newly registered callbacks, and those already associated with an
	// in-progress grace period.
	cbs      *Callback
	cbsTail  **Callback
	waitCbs  *Callback
	waitTail **Callback

	// readNesting counts read-side critical-section depth for the CPU
	// context; the CPU may not report quiescence while it is non-zero.
	readNesting atomic.Int32

	kick chan struct{}
	_    cpu.CacheLinePad
}

// ThreadFactory creates the background reclamation threads. The default
// implementation runs plain goroutines; embedders with their own kernel
// thread abstraction can substitute it.
type ThreadFactory interface {
	Spawn(name string, fn func())
}

type goroutineFactory struct{}

func (goroutineFactory) Spawn(_ string, fn func()) { go fn() }

// State is the global RCU state: the quiescent-state tree, the grace
// period counters and the per-CPU records. It is allocated once and lives
// for the lifetime of the process.
type State struct {
	numCPUs    int
	fanout     int
	stallTicks atomic.Uint64

	levels [][]*node // levels[0] = leaves, last = root level
	root   *node
	data   []*cpuData

	// mu is the grace-period lock guarding gpSeq, online and the waiter
	// condition. completed mirrors the completed sequence for lock-free
	// readers; it is only stored while holding mu.
	mu        sync.Mutex
	gpSeq     uint64
	completed atomic.Uint64
	gpCond    *sync.Cond
	online    cpumask.Mask

	// ticksSinceGP counts scheduler ticks without grace-period progress.
	ticksSinceGP atomic.Uint64
	stallLogged  atomic.Bool

	threads ThreadFactory
	wg      util.WaitGroupWrapper
	stopCh  chan struct{}
	started atomic.Bool
}

// Option customizes a State.
type Option func(*State)

// WithThreadFactory substitutes the kernel-thread abstraction used for the
// background reclamation threads.
func WithThreadFactory(tf ThreadFactory) Option {
	return func(s *State) { s.threads = tf }
}

// NewState builds the node tree for cfg.NumCPUs CPUs. Every CPU starts
// online. Background threads are not running until Start is called;
// without them, callbacks are still drained from CheckCallbacks.
func NewState(cfg *config.Config, opts ...Option) (*State, error) {
	if err := cfg.Valid(); err != nil {
		return nil, errors.Trace(err)
	}
	s := &State{
		numCPUs: cfg.NumCPUs,
		fanout:  cfg.RCU.Fanout,
		online:  cpumask.Full(cfg.NumCPUs),
		threads: goroutineFactory{},
		stopCh:  make(chan struct{}),
	}
	s.stallTicks.Store(cfg.RCU.StallTicks)
	s.gpCond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	if err := s.buildTree(); err != nil {
		return nil, errors.Trace(err)
	}

	s.data = make([]*cpuData, s.numCPUs)
	for i := 0; i < s.numCPUs; i++ {
		d := &cpuData{
			cpu:  i,
			kick: make(chan struct{}, 1),
		}
		d.cbsTail = &d.cbs
		d.waitTail = &d.waitCbs
		d.leaf = s.leafFor(i)
		s.data[i] = d
	}

	logutil.BgLogger().Info("hierarchical RCU initialized",
		zap.Int("cpus", s.numCPUs),
		zap.Int("fanout", s.fanout),
		zap.Int("levels", len(s.levels)))
	return s, nil
}

// buildTree lays out the quiescent-state tree bottom-up: leaves cover
// fanout CPUs each, every higher level groups fanout nodes, until a single
// root remains.
func (s *State) buildTree() error {
	nLeaves := (s.numCPUs + s.fanout - 1) / s.fanout
	leaves := make([]*node, 0, nLeaves)
	for i := 0; i < nLeaves; i++ {
		lo := i * s.fanout
		hi := lo + s.fanout
		if hi > s.numCPUs {
			hi = s.numCPUs
		}
		leaves = append(leaves, &node{
			qsMask: bitset.New(uint(s.fanout)),
			level:  0,
			lo:     lo,
			hi:     hi,
		})
	}

	s.levels = [][]*node{leaves}
	lower := leaves
	for len(lower) > 1 {
		if len(s.levels) >= maxLevels {
			return errors.Errorf("RCU tree exceeds %d levels for %d CPUs with fanout %d",
				maxLevels, s.numCPUs, s.fanout)
		}
		upper := make([]*node, 0, (len(lower)+s.fanout-1)/s.fanout)
		for i := 0; i < len(lower); i += s.fanout {
			end := i + s.fanout
			if end > len(lower) {
				end = len(lower)
			}
			n := &node{
				qsMask:   bitset.New(uint(s.fanout)),
				children: lower[i:end],
				level:    len(s.levels),
				lo:       lower[i].lo,
				hi:       lower[end-1].hi,
			}
			for bit, child := range n.children {
				child.parent = n
				child.parentBit = uint(bit)
			}
			upper = append(upper, n)
		}
		s.levels = append(s.levels, upper)
		lower = upper
	}
	s.root = lower[0]
	return nil
}

func (s *State) leafFor(cpu int) *node {
	return s.levels[0][cpu/s.fanout]
}

// Start spawns one reclamation thread per CPU.
func (s *State) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < s.numCPUs; i++ {
		d := s.data[i]
		s.wg.Add(1)
		s.threads.Spawn("rcuc/"+strconv.Itoa(i), func() {
			defer s.wg.Done()
			s.kthread(d)
		})
	}
}

// Stop terminates the reclamation threads and waits for them. Pending
// callbacks are not drained.
func (s *State) Stop() {
	if !s.started.Load() {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

// kthread is the per-CPU reclamation thread body. It drains ready
// callbacks whenever poked, and polls as a fallback so work is never
// stranded between kicks. A CPU with no reader in flight is quiescent,
// so the thread also reports on its CPU's behalf; this keeps grace
// periods progressing even without a scheduler tick source.
func (s *State) kthread(d *cpuData) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-d.kick:
		case <-ticker.C:
		}
		if d.readNesting.Load() == 0 {
			s.ReportQS(d.cpu)
		}
		s.processCallbacks(d.cpu)
	}
}

// ReadLock enters a read-side critical section on the given CPU context.
// Readers never block writers; in exchange they may observe slightly
// stale data. Sections nest.
func (s *State) ReadLock(cpu int) {
	if cpu >= 0 && cpu < s.numCPUs {
		s.data[cpu].readNesting.Inc()
	}
}

// ReadUnlock leaves a read-side critical section.
func (s *State) ReadUnlock(cpu int) {
	if cpu >= 0 && cpu < s.numCPUs {
		if s.data[cpu].readNesting.Dec() < 0 {
			panic("rcu: unbalanced ReadUnlock")
		}
	}
}

func (d *cpuData) poke() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// NumCPUs returns the number of CPUs the tree covers.
func (s *State) NumCPUs() int { return s.numCPUs }

// CompletedSeq returns the last completed grace-period sequence.
func (s *State) CompletedSeq() uint64 { return s.completed.Load() }

// GPSeq returns the current grace-period sequence number.
func (s *State) GPSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gpSeq
}

// GPInProgress reports whether a grace period is currently running.
func (s *State) GPInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gpSeq != s.completed.Load()
}

