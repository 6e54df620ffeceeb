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

// Package metrics exposes the diagnostics counters of the scheduler core.
// Every rejected migration and balancing failure is visible here; nothing
// is silently swallowed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label constants.
const (
	LblCPU    = "cpu"
	LblReason = "reason"
)

// Reasons for rejected task movement.
const (
	ReasonInvalidCPU = "invalid_cpu"
	ReasonAffinity   = "affinity"
	ReasonNoTasks    = "no_tasks"
	ReasonThreshold  = "below_threshold"
)

// RegisterMetrics registers the scheduler metrics with the given registry.
func RegisterMetrics(r *prometheus.Registry) {
	r.MustRegister(SchedSwitches)
	r.MustRegister(SchedMigrations)
	r.MustRegister(SchedBalancePasses)
	r.MustRegister(SchedBalanceFailures)
	r.MustRegister(SchedMigrationRejected)
	r.MustRegister(SchedAffinityWarnings)
	r.MustRegister(SchedIPIs)
	r.MustRegister(SchedRunnable)
	r.MustRegister(RCUGracePeriods)
	r.MustRegister(RCUCallbacksQueued)
	r.MustRegister(RCUCallbacksInvoked)
	r.MustRegister(RCUStallWarnings)
}
