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

// RCU metrics.
var (
	RCUGracePeriods = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "rcu",
			Name:      "grace_periods_total",
			Help:      "Counter of completed grace periods.",
		})

	RCUCallbacksQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "rcu",
			Name:      "callbacks_queued_total",
			Help:      "Counter of callbacks registered per CPU.",
		}, []string{LblCPU})

	RCUCallbacksInvoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "rcu",
			Name:      "callbacks_invoked_total",
			Help:      "Counter of callbacks invoked after their grace period.",
		}, []string{LblCPU})

	RCUStallWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aerosched",
			Subsystem: "rcu",
			Name:      "stall_warnings_total",
			Help:      "Counter of grace periods that exceeded the stall threshold.",
		})
)
