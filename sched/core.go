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
	"strconv"
	"time"

	"github.com/assembler-0/aerosched/config"
	"github.com/assembler-0/aerosched/cpumask"
	"github.com/assembler-0/aerosched/metrics"
	"github.com/assembler-0/aerosched/rcu"
	"github.com/assembler-0/aerosched/util"
	"github.com/assembler-0/aerosched/util/logutil"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Errors returned for rejected task movement.
var (
	ErrInvalidCPU  = errors.New("sched: target CPU out of range")
	ErrAffinity    = errors.New("sched: target CPU outside task affinity mask")
	ErrTaskRunning = errors.New("sched: task is currently running")
	ErrEmptyMask   = errors.New("sched: affinity mask selects no valid CPU")
)

// Scheduler owns the per-CPU runqueues, the class chain, the topology and
// the RCU engine. It is created once and lives for the whole run; there is
// no teardown of the runqueues themselves, only Stop for the background
// workers.
type Scheduler struct {
	numCPUs int
	rqs     []*Runqueue
	classes [nrClasses]*classDesc

	latencyNs            uint64
	minGranularityNs     uint64
	wakeupGranularityNs  uint64
	rrTimesliceTicks     uint64
	balanceIntervalTicks uint64
	migrationBatch       int
	balanceScanLimit     int
	piChainDepth         int

	platform Platform
	clock    Clock
	rcuState *rcu.State

	nextPID atomic.Int64

	// taskRegistry is the RCU-protected all-tasks list (tasks.go).
	taskRegistry taskRegistry

	wg util.WaitGroupWrapper
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPlatform installs the hardware hooks.
func WithPlatform(p Platform) Option {
	return func(s *Scheduler) { s.platform = p }
}

// WithClock installs the time source of the runqueue clocks.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// NewScheduler builds the runqueues, idle tasks, topology and RCU state
// for cfg.NumCPUs CPUs. The RCU reclamation workers are not running until
// Start.
func NewScheduler(cfg *config.Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Valid(); err != nil {
		return nil, errors.Trace(err)
	}
	s := &Scheduler{
		numCPUs:              cfg.NumCPUs,
		latencyNs:            cfg.Scheduler.LatencyNs,
		minGranularityNs:     cfg.Scheduler.MinGranularityNs,
		wakeupGranularityNs:  cfg.Scheduler.WakeupGranularityNs,
		rrTimesliceTicks:     cfg.Scheduler.RRTimesliceTicks,
		balanceIntervalTicks: cfg.Scheduler.BalanceIntervalTicks,
		migrationBatch:       cfg.Scheduler.MigrationBatch,
		balanceScanLimit:     cfg.Scheduler.BalanceScanLimit,
		piChainDepth:         cfg.Scheduler.PIChainDepth,
		platform:             NopPlatform{},
		clock:                NewManualClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.classes[classDeadline] = &classDesc{id: classDeadline, Class: &dlClass{s: s}}
	s.classes[classRealTime] = &classDesc{id: classRealTime, Class: &rtClass{s: s}}
	s.classes[classFair] = &classDesc{id: classFair, Class: &fairClass{s: s}}
	s.classes[classIdle] = &classDesc{id: classIdle, Class: &idleClass{s: s}}

	s.rqs = make([]*Runqueue, s.numCPUs)
	for i := range s.rqs {
		rq := &Runqueue{cpu: i}
		rq.cfs.timeline = newTimeline()
		rq.rt = newRTRQ()
		rq.dl = newDLRQ()
		s.rqs[i] = rq
	}
	for i, rq := range s.rqs {
		idle := s.newTask("swapper/"+strconv.Itoa(i), flagIdle|flagKthread)
		idle.cpu = i
		idle.cpusAllowed = cpumask.Of(s.numCPUs, i)
		idle.prio = MaxPrio
		idle.staticPrio = MaxPrio
		idle.normalPrio = MaxPrio
		idle.class = s.classes[classIdle]
		rq.idle = idle
		rq.curr = idle
	}
	s.buildTopology(cfg.Topology)

	rs, err := rcu.NewState(cfg, rcu.WithThreadFactory(s))
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.rcuState = rs

	logutil.BgLogger().Info("scheduler initialized",
		zap.Int("cpus", s.numCPUs),
		zap.Uint64("latency-ns", s.latencyNs),
		zap.Uint64("min-granularity-ns", s.minGranularityNs))
	return s, nil
}

// Start launches the per-CPU RCU reclamation workers.
func (s *Scheduler) Start() { s.rcuState.Start() }

// Stop halts the RCU workers and waits for every kthread goroutine.
func (s *Scheduler) Stop() {
	s.rcuState.Stop()
	s.wg.Wait()
}

// RCU exposes the grace-period engine for read-side sections and deferred
// reclamation.
func (s *Scheduler) RCU() *rcu.State { return s.rcuState }

// ApplyConfig merges the dynamic tunables of newCfg into the global config
// and installs them in the running scheduler, the sysctl write path.
// Structural items (CPU count, topology, RCU fanout) are rejected by the
// merge and reported back; the accepted ones take effect under all
// runqueue locks so in-flight accounting sees a consistent set.
func (s *Scheduler) ApplyConfig(newCfg *config.Config) (accepted, rejected []string, err error) {
	cfg, err := config.CloneConf(config.GetGlobalConfig())
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	accepted, rejected = config.MergeConfigItems(cfg, newCfg)
	if err := cfg.Valid(); err != nil {
		return nil, nil, errors.Trace(err)
	}
	config.StoreGlobalConfig(cfg)

	for _, rq := range s.rqs {
		rq.lock()
	}
	s.latencyNs = cfg.Scheduler.LatencyNs
	s.minGranularityNs = cfg.Scheduler.MinGranularityNs
	s.wakeupGranularityNs = cfg.Scheduler.WakeupGranularityNs
	s.rrTimesliceTicks = cfg.Scheduler.RRTimesliceTicks
	s.balanceIntervalTicks = cfg.Scheduler.BalanceIntervalTicks
	s.migrationBatch = cfg.Scheduler.MigrationBatch
	s.balanceScanLimit = cfg.Scheduler.BalanceScanLimit
	s.piChainDepth = cfg.Scheduler.PIChainDepth
	for i := len(s.rqs) - 1; i >= 0; i-- {
		s.rqs[i].unlock()
	}
	s.rcuState.SetStallTicks(cfg.RCU.StallTicks)
	if err := logutil.SetLevel(cfg.Log.Level); err != nil {
		return accepted, rejected, errors.Trace(err)
	}

	if len(rejected) > 0 {
		logutil.BgLogger().Warn("non-dynamic config items ignored",
			zap.Strings("rejected", rejected))
	}
	if len(accepted) > 0 {
		logutil.BgLogger().Info("dynamic tunables applied",
			zap.Strings("accepted", accepted))
	}
	return accepted, rejected, nil
}

// NumCPUs returns the number of modeled CPUs.
func (s *Scheduler) NumCPUs() int { return s.numCPUs }

// RQ returns the runqueue of a CPU.
func (s *Scheduler) RQ(cpu int) *Runqueue { return s.rqs[cpu] }

func (s *Scheduler) validCPU(cpu int) bool { return cpu >= 0 && cpu < s.numCPUs }

// cpuIdle reports, without locking, whether a CPU is running its idle task.
func (s *Scheduler) cpuIdle(cpu int) bool {
	rq := s.rqs[cpu]
	return rq.curr == nil || rq.curr == rq.idle
}

func (s *Scheduler) newTask(comm string, flags int) *Task {
	t := &Task{
		PID:        s.nextPID.Inc(),
		Comm:       comm,
		flags:      flags,
		policy:     PolicyNormal,
		nice:       0,
		staticPrio: DefaultPrio,
		normalPrio: DefaultPrio,
		prio:       DefaultPrio,
		piWaiters:  list.New(),
		wakeCh:     make(chan struct{}, 1),
	}
	t.setState(TaskRunning)
	return t
}

// NewTask creates a fair-class task in the runnable-but-not-yet-woken
// state with full CPU affinity. The first WakeUp places it on a runqueue.
func (s *Scheduler) NewTask(comm string) *Task {
	t := s.newTask(comm, 0)
	t.cpusAllowed = cpumask.Full(s.numCPUs)
	t.class = s.classes[classFair]
	t.class.TaskFork(t)
	s.taskRegistry.register(t)
	return t
}

// KthreadCreate builds a kernel-thread task whose body runs on its own
// goroutine once KthreadRun performs the initial wake-up.
func (s *Scheduler) KthreadCreate(name string, fn func()) *Task {
	t := s.newTask(name, flagKthread)
	t.cpusAllowed = cpumask.Full(s.numCPUs)
	t.class = s.classes[classFair]
	t.class.TaskFork(t)
	t.entry = fn
	s.taskRegistry.register(t)
	s.wg.Run(func() {
		<-t.wakeCh
		fn()
		s.Exit(t)
	})
	return t
}

// KthreadRun performs the initial wake-up of a task from KthreadCreate.
func (s *Scheduler) KthreadRun(t *Task) { s.WakeUp(t) }

// Spawn implements rcu.ThreadFactory on top of the kthread factory.
func (s *Scheduler) Spawn(name string, fn func()) {
	s.KthreadRun(s.KthreadCreate(name, fn))
}

// WakeUp transitions a sleeping (or never-started) task to runnable:
// serialize on the task's priority lock, let its class choose a CPU,
// enqueue there, check preemption and signal the remote CPU if needed.
// Waking an already runnable task is a no-op, so a timeout wake racing a
// normal wake is benign. Returns true when it performed the transition.
func (s *Scheduler) WakeUp(t *Task) bool {
	t.piLock.Lock()

	if t.State() == TaskZombie {
		t.piLock.Unlock()
		return false
	}
	if t.onAnyRQ() || s.taskIsCurr(t) {
		// Still on a queue or on a CPU. A wake landing between the sleep
		// mark and the context switch re-marks the task runnable, so
		// Schedule keeps it instead of dropping it.
		woke := false
		switch t.State() {
		case TaskInterruptible, TaskUninterruptible:
			t.setState(TaskRunning)
			woke = true
		}
		t.piLock.Unlock()
		t.signalWake()
		return woke
	}
	t.setState(TaskRunning)

	target := t.class.SelectTaskRQ(t, t.cpu)
	if !s.validCPU(target) || !t.cpusAllowed.Test(target) {
		target = t.cpu
	}
	if !s.validCPU(target) {
		target = t.cpusAllowed.First()
		if !s.validCPU(target) {
			target = 0
		}
	}

	rq := s.rqs[target]
	rq.lock()
	s.updateClock(rq)
	t.cpu = target
	t.class.EnqueueTask(rq, t, EnqueueWakeup)
	t.class.CheckPreemptCurr(rq, t)
	resched := rq.needResched
	rq.unlock()
	t.piLock.Unlock()

	t.signalWake()
	if resched {
		s.sendResched(target)
	}
	return true
}

// taskIsCurr reports whether t is the running task of its CPU. Snapshot
// read; the piLock held by the caller keeps t from being woken twice.
func (s *Scheduler) taskIsCurr(t *Task) bool {
	if !s.validCPU(t.cpu) {
		return false
	}
	return s.rqs[t.cpu].curr == t
}

func (t *Task) signalWake() {
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) sendResched(cpu int) {
	metrics.SchedIPIs.WithLabelValues(strconv.Itoa(cpu)).Inc()
	s.platform.SendRescheduleIPI(cpu)
}

// Schedule runs one dispatch decision on the given CPU: put back the
// outgoing task if it is still runnable, honor a yield handoff hint, walk
// the class chain, attempt an idle balance before settling for the idle
// task, and context switch. It refuses to run while the current task has
// preemption disabled.
func (s *Scheduler) Schedule(cpu int) {
	rq := s.rqs[cpu]
	if curr := rq.curr; curr != nil && !curr.Preemptible() {
		return
	}

	rq.lock()
	s.updateClock(rq)
	rq.needResched = false

	prev := rq.curr
	var hint *Task
	if prev != nil {
		prev.class.UpdateCurr(rq)
		hint = prev.succHint
		prev.succHint = nil
		if prev.State() == TaskRunning && !prev.IsIdle() {
			prev.class.PutPrevTask(rq, prev)
		}
	}

	var next *Task
	if hint != nil && hint.onAnyRQ() && hint.cpu == cpu && hint.State() == TaskRunning {
		hint.class.DequeueTask(rq, hint, 0)
		next = hint
	}
	if next == nil {
		next = s.pickNext(rq)
	}
	if next == nil {
		// Nothing runnable here: try to pull work before going idle.
		rq.unlock()
		s.rebalance(cpu, true)
		rq.lock()
		s.updateClock(rq)
		next = s.pickNext(rq)
	}
	if next == nil {
		next = s.classes[classIdle].PickNextTask(rq)
	}

	if next == prev {
		rq.unlock()
		return
	}

	rq.curr = next
	next.class.SetNextTask(rq, next)
	rq.nrSwitches++
	metrics.SchedSwitches.WithLabelValues(strconv.Itoa(cpu)).Inc()
	metrics.SchedRunnable.WithLabelValues(strconv.Itoa(cpu)).Set(float64(rq.nrRunnable()))
	if prev != nil {
		if prev.State() == TaskRunning {
			prev.nivcsw.Inc()
		} else {
			prev.nvcsw.Inc()
		}
	}

	switchMM := !next.IsKthread() &&
		(prev == nil || prev.IsKthread() || prev.PID != next.PID)

	// Release before the low-level switch; nothing may hold a runqueue
	// lock across it.
	rq.unlock()

	if switchMM {
		s.platform.SwitchMM(prev, next)
	}
	s.platform.ContextSwitch(prev, next)
}

// pickNext walks the dispatch chain, excluding the idle tail. Caller holds
// the lock.
func (s *Scheduler) pickNext(rq *Runqueue) *Task {
	for _, c := range s.classes[:classIdle] {
		if next := c.PickNextTask(rq); next != nil {
			return next
		}
	}
	return nil
}

// Tick is the per-CPU timer interrupt: advance the clocks, run the running
// task's class accounting, fold load averages, drive RCU, and fire the
// staggered periodic balance.
func (s *Scheduler) Tick(cpu int) {
	rq := s.rqs[cpu]
	rq.lock()
	s.updateClock(rq)
	rq.ticks++
	curr := rq.curr
	if curr != nil {
		curr.class.TaskTick(rq, curr)
	}
	rq.updateLoadAvg()
	balance := s.balanceIntervalTicks > 0 &&
		(rq.ticks+uint64(cpu))%s.balanceIntervalTicks == 0
	rq.unlock()

	preemptible := curr == nil || curr.Preemptible()
	s.rcuState.CheckCallbacks(cpu, preemptible)

	if balance {
		s.rebalance(cpu, false)
	}
}

// CheckPreempt consumes a pending reschedule request, the safe point a
// tick or remote IPI aimed at.
func (s *Scheduler) CheckPreempt(cpu int) {
	rq := s.rqs[cpu]
	rq.lock()
	pending := rq.needResched
	rq.unlock()
	if pending {
		s.Schedule(cpu)
	}
}

// Yield sends the running task to the back of its sub-queue and
// reschedules.
func (s *Scheduler) Yield(cpu int) {
	rq := s.rqs[cpu]
	rq.lock()
	s.updateClock(rq)
	if curr := rq.curr; curr != nil && !curr.IsIdle() {
		curr.class.YieldTask(rq, curr)
		rq.setNeedResched()
	}
	rq.unlock()
	s.Schedule(cpu)
}

// YieldTo yields the CPU with a direct-handoff hint: if target is runnable
// on this CPU when Schedule runs, it is picked ahead of the usual order.
func (s *Scheduler) YieldTo(cpu int, target *Task) {
	rq := s.rqs[cpu]
	rq.lock()
	s.updateClock(rq)
	if curr := rq.curr; curr != nil && !curr.IsIdle() {
		curr.succHint = target
		curr.class.YieldTask(rq, curr)
		rq.setNeedResched()
	}
	rq.unlock()
	s.Schedule(cpu)
}

// Sleep marks the running task as sleeping and schedules away from it.
// The task runs again only after a WakeUp.
func (s *Scheduler) Sleep(cpu int, state TaskState) {
	if state != TaskInterruptible && state != TaskUninterruptible {
		state = TaskInterruptible
	}
	rq := s.rqs[cpu]
	rq.lock()
	curr := rq.curr
	if curr == nil || curr.IsIdle() {
		rq.unlock()
		return
	}
	curr.setState(state)
	rq.unlock()
	s.Schedule(cpu)
}

// ScheduleTimeout sleeps the running task and arms a timer that wakes it
// after d. An earlier normal wake-up wins; the late timer wake finds the
// task already runnable and is a no-op. The returned timer lets callers
// cancel the arm.
func (s *Scheduler) ScheduleTimeout(cpu int, d time.Duration) *time.Timer {
	rq := s.rqs[cpu]
	rq.lock()
	curr := rq.curr
	if curr == nil || curr.IsIdle() {
		rq.unlock()
		return nil
	}
	// Mark the sleep before arming the timer. An immediate fire then
	// lands in the wake-racing-sleep window and restores the running
	// state rather than being discarded as already-runnable.
	curr.setState(TaskInterruptible)
	rq.unlock()
	timer := time.AfterFunc(d, func() { s.WakeUp(curr) })
	s.Schedule(cpu)
	return timer
}

// Exit turns a task into a zombie, removes it from scheduling and the
// registry, and defers reclamation of the descriptor to RCU so lock-free
// registry readers can finish with it.
func (s *Scheduler) Exit(t *Task) {
	t.piLock.Lock()
	t.setState(TaskZombie)
	rq := s.lockTaskRQ(t)
	if t.onAnyRQ() {
		t.class.DequeueTask(rq, t, DequeueSleep)
	}
	wasCurr := rq.curr == t
	if wasCurr {
		rq.setNeedResched()
	}
	cpu := t.cpu
	rq.unlock()
	t.piLock.Unlock()

	s.taskRegistry.unregister(t)
	if !s.validCPU(cpu) {
		cpu = 0
	}
	if err := s.rcuState.CallRCU(cpu, func() { t.reclaimed.Store(true) }); err != nil {
		logutil.BgLogger().Error("deferred task reclaim failed",
			zap.Int64("pid", t.PID), zap.Error(err))
	}
}

// lockTaskRQ locks the runqueue the task currently belongs to, rechecking
// after acquisition since migration can change t.cpu while it waits.
func (s *Scheduler) lockTaskRQ(t *Task) *Runqueue {
	for {
		cpu := t.cpu
		if !s.validCPU(cpu) {
			cpu = 0
		}
		rq := s.rqs[cpu]
		rq.lock()
		if t.cpu == cpu || !s.validCPU(t.cpu) {
			return rq
		}
		rq.unlock()
	}
}

// MoveTask migrates a queued task to another CPU's runqueue, rejecting
// out-of-range targets and affinity violations.
func (s *Scheduler) MoveTask(t *Task, cpu int) error {
	return s.moveTask(t, cpu, false)
}

// ForceMoveTask migrates regardless of the affinity mask; the violation is
// logged and counted as a policy warning.
func (s *Scheduler) ForceMoveTask(t *Task, cpu int) error {
	return s.moveTask(t, cpu, true)
}

func (s *Scheduler) moveTask(t *Task, cpu int, forced bool) error {
	if !s.validCPU(cpu) {
		metrics.SchedMigrationRejected.WithLabelValues(metrics.ReasonInvalidCPU).Inc()
		logutil.BgLogger().Error("rejected migration to invalid CPU",
			zap.Int64("pid", t.PID), zap.Int("cpu", cpu))
		return errors.Trace(ErrInvalidCPU)
	}
	if !t.cpusAllowed.Test(cpu) {
		if !forced {
			metrics.SchedMigrationRejected.WithLabelValues(metrics.ReasonAffinity).Inc()
			logutil.BgLogger().Error("rejected migration outside affinity mask",
				zap.Int64("pid", t.PID), zap.Int("cpu", cpu))
			return errors.Trace(ErrAffinity)
		}
		metrics.SchedAffinityWarnings.Inc()
		logutil.BgLogger().Warn("forced migration outside affinity mask",
			zap.Int64("pid", t.PID), zap.Int("cpu", cpu))
	}

	dst := s.rqs[cpu]
	for {
		src := s.rqs[t.cpu]
		doubleLock(src, dst)
		if s.rqs[t.cpu] != src {
			doubleUnlock(src, dst)
			continue
		}
		err := s.moveTaskLocked(src, dst, t)
		resched := dst.needResched
		doubleUnlock(src, dst)
		if err == nil && resched {
			s.sendResched(cpu)
		}
		return err
	}
}

// moveTaskLocked performs the dequeue/retarget/enqueue under both locks.
// The Move flags make the fair class renormalize vruntime across the two
// queues' origins.
func (s *Scheduler) moveTaskLocked(src, dst *Runqueue, t *Task) error {
	if src.curr == t {
		return errors.Trace(ErrTaskRunning)
	}
	s.updateClock(src)
	s.updateClock(dst)
	if t.onAnyRQ() {
		t.class.DequeueTask(src, t, DequeueMove)
		t.cpu = dst.cpu
		t.class.EnqueueTask(dst, t, EnqueueMove)
		t.class.CheckPreemptCurr(dst, t)
	} else {
		t.cpu = dst.cpu
	}
	dst.nrMigrations++
	metrics.SchedMigrations.WithLabelValues(strconv.Itoa(dst.cpu)).Inc()
	return nil
}

// SetAffinity replaces the task's allowed-CPU set and migrates it off a
// now-forbidden CPU.
func (s *Scheduler) SetAffinity(t *Task, mask cpumask.Mask) error {
	valid := false
	mask.ForEach(func(cpu int) {
		if s.validCPU(cpu) {
			valid = true
		}
	})
	if !valid {
		return errors.Trace(ErrEmptyMask)
	}
	t.piLock.Lock()
	t.cpusAllowed.CopyFrom(mask)
	needMove := !mask.Test(t.cpu)
	t.piLock.Unlock()
	if needMove {
		return s.MoveTask(t, mask.First())
	}
	return nil
}

// SetNice changes a fair task's nice value, requeueing it with the new
// weight.
func (s *Scheduler) SetNice(t *Task, nice int) {
	if nice < MinNice {
		nice = MinNice
	}
	if nice > MaxNice {
		nice = MaxNice
	}
	t.piLock.Lock()
	t.nice = nice
	t.staticPrio = NiceToPrio(nice)
	t.normalPrio = normalPrioFor(t.policy, t.rtPriority, t.staticPrio)
	s.applyEffectivePrio(t)
	t.piLock.Unlock()
}

// SetScheduler changes a task's policy and real-time priority, performing
// the class transition when the priority band changes.
func (s *Scheduler) SetScheduler(t *Task, policy Policy, rtPriority int) error {
	switch policy {
	case PolicyFIFO, PolicyRR:
		if rtPriority < 0 || rtPriority >= MaxRTPrio {
			return errors.Errorf("sched: rt priority %d out of range [0, %d)",
				rtPriority, MaxRTPrio)
		}
	case PolicyNormal, PolicyBatch, PolicyIdle, PolicyDeadline:
		if rtPriority != 0 {
			return errors.Errorf("sched: policy %d takes no rt priority", policy)
		}
	default:
		return errors.Errorf("sched: unknown policy %d", policy)
	}
	t.piLock.Lock()
	t.policy = policy
	t.rtPriority = rtPriority
	t.normalPrio = normalPrioFor(policy, rtPriority, t.staticPrio)
	s.applyEffectivePrio(t)
	t.piLock.Unlock()
	return nil
}

// applyEffectivePrio recomputes the effective priority from the normal
// priority and the PI waiter list, then applies it through the class
// machinery. Caller holds t.piLock.
func (s *Scheduler) applyEffectivePrio(t *Task) {
	s.setPrio(t, t.computeEffectivePrio())
}

// setPrio installs a new effective priority, switching scheduling class
// when the priority band demands it. The save/restore requeue keeps the
// class sub-queues consistent with the new value. Caller holds t.piLock.
func (s *Scheduler) setPrio(t *Task, prio int) {
	rq := s.lockTaskRQ(t)
	s.updateClock(rq)

	oldPrio := t.prio
	oldClass := t.class
	queued := t.onAnyRQ()
	running := rq.curr == t

	if t.IsIdle() {
		// Idle tasks never change class or priority.
		rq.unlock()
		return
	}

	if queued {
		oldClass.DequeueTask(rq, t, DequeueSave)
	}
	t.prio = prio
	newClass := s.classForPrio(prio)
	if newClass != oldClass {
		t.class = newClass
		oldClass.SwitchedFrom(rq, t)
	}
	if queued {
		newClass.EnqueueTask(rq, t, EnqueueRestore)
	}
	if newClass != oldClass {
		newClass.SwitchedTo(rq, t)
	} else {
		newClass.PrioChanged(rq, t, oldPrio)
	}
	if running {
		rq.setNeedResched()
	}
	resched := rq.needResched
	cpu := rq.cpu
	rq.unlock()
	if resched {
		s.sendResched(cpu)
	}
}
