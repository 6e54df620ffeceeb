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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Scheduler metrics.
var (
	SchedSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "switches_total",
			Help:      "Counter of context switches.",
		}, []string{LblCPU})

	SchedMigrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "migrations_total",
			Help:      "Counter of tasks migrated onto a CPU.",
		}, []string{LblCPU})

	SchedBalancePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "balance_passes_total",
			Help:      "Counter of load-balance passes that moved work.",
		}, []string{LblCPU})

	SchedBalanceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "balance_failures_total",
			Help:      "Counter of balance passes that found nothing to pull.",
		}, []string{LblCPU, LblReason})

	SchedMigrationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "migration_rejected_total",
			Help:      "Counter of rejected task movements.",
		}, []string{LblReason})

	SchedAffinityWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "affinity_warnings_total",
			Help:      "Counter of forced migrations outside a task's affinity mask.",
		})

	SchedIPIs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "resched_ipis_total",
			Help:      "Counter of reschedule interrupts sent to remote CPUs.",
		}, []string{LblCPU})

	SchedRunnable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aerosched",
			Subsystem: "sched",
			Name:      "runnable_tasks",
			Help:      "Gauge of runnable tasks per runqueue.",
		}, []string{LblCPU})
)
