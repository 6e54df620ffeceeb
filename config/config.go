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

package config

import (
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/assembler-0/aerosched/util/logutil"
	"github.com/pingcap/errors"
)

// Default tuning values, taken over from the kernel implementation.
const (
	// DefaultLatencyNs is the scheduling latency target: the period in
	// which every runnable fair task should run once.
	DefaultLatencyNs = 6 * 1000 * 1000
	// DefaultMinGranularityNs is the floor of a fair time slice.
	DefaultMinGranularityNs = 750 * 1000
	// DefaultWakeupGranularityNs is the vruntime gap a waking task needs
	// over the current one before it preempts.
	DefaultWakeupGranularityNs = 1000 * 1000
	// DefaultRRTimesliceTicks is the round-robin quantum of SCHED_RR
	// tasks, in scheduler ticks.
	DefaultRRTimesliceTicks = 100
	// DefaultBalanceIntervalTicks spaces the periodic load-balance passes.
	DefaultBalanceIntervalTicks = 100
	// DefaultMigrationBatch bounds how many tasks one balance pass moves.
	DefaultMigrationBatch = 8
	// DefaultBalanceScanLimit bounds how many queued tasks one balance
	// pass examines while holding both runqueue locks.
	DefaultBalanceScanLimit = 32
	// DefaultRCUFanout is the number of children per RCU tree node.
	DefaultRCUFanout = 16
	// DefaultRCUStallTicks is the number of ticks a grace period may sit
	// without progress before a stall warning is logged.
	DefaultRCUStallTicks = 10000
	// DefaultPIChainDepth bounds transitive priority-inheritance boosting.
	DefaultPIChainDepth = 32
)

// Config contains the tuning options of the scheduler core.
type Config struct {
	NumCPUs int `toml:"num-cpus" json:"num-cpus"`

	Log       logutil.LogConfig `toml:"log" json:"log"`
	Scheduler Scheduler         `toml:"scheduler" json:"scheduler"`
	RCU       RCU               `toml:"rcu" json:"rcu"`
	Topology  Topology          `toml:"topology" json:"topology"`
}

// Scheduler is the scheduler section of the config.
type Scheduler struct {
	LatencyNs            uint64 `toml:"latency-ns" json:"latency-ns"`
	MinGranularityNs     uint64 `toml:"min-granularity-ns" json:"min-granularity-ns"`
	WakeupGranularityNs  uint64 `toml:"wakeup-granularity-ns" json:"wakeup-granularity-ns"`
	RRTimesliceTicks     uint64 `toml:"rr-timeslice-ticks" json:"rr-timeslice-ticks"`
	BalanceIntervalTicks uint64 `toml:"balance-interval-ticks" json:"balance-interval-ticks"`
	MigrationBatch       int    `toml:"migration-batch" json:"migration-batch"`
	BalanceScanLimit     int    `toml:"balance-scan-limit" json:"balance-scan-limit"`
	PIChainDepth         int    `toml:"pi-chain-depth" json:"pi-chain-depth"`
}

// RCU is the RCU section of the config.
type RCU struct {
	Fanout     int    `toml:"fanout" json:"fanout"`
	StallTicks uint64 `toml:"stall-ticks" json:"stall-ticks"`
}

// Topology describes the static CPU hierarchy the load balancer walks.
// CPUs are split into packages of CoresPerPackage cores; a zero value
// puts every CPU into a single package.
type Topology struct {
	CoresPerPackage int `toml:"cores-per-package" json:"cores-per-package"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		NumCPUs: 1,
		Log: logutil.LogConfig{
			Level: logutil.DefaultLogLevel,
		},
		Scheduler: Scheduler{
			LatencyNs:            DefaultLatencyNs,
			MinGranularityNs:     DefaultMinGranularityNs,
			WakeupGranularityNs:  DefaultWakeupGranularityNs,
			RRTimesliceTicks:     DefaultRRTimesliceTicks,
			BalanceIntervalTicks: DefaultBalanceIntervalTicks,
			MigrationBatch:       DefaultMigrationBatch,
			BalanceScanLimit:     DefaultBalanceScanLimit,
			PIChainDepth:         DefaultPIChainDepth,
		},
		RCU: RCU{
			Fanout:     DefaultRCUFanout,
			StallTicks: DefaultRCUStallTicks,
		},
	}
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	_, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	return c.Valid()
}

// Valid checks the config for contradictions.
func (c *Config) Valid() error {
	if c.NumCPUs <= 0 {
		return errors.Errorf("num-cpus must be positive, got %d", c.NumCPUs)
	}
	if c.Scheduler.LatencyNs == 0 || c.Scheduler.MinGranularityNs == 0 {
		return errors.New("scheduler latency and min granularity must be non-zero")
	}
	if c.Scheduler.MinGranularityNs > c.Scheduler.LatencyNs {
		return errors.Errorf("min-granularity-ns %d exceeds latency-ns %d",
			c.Scheduler.MinGranularityNs, c.Scheduler.LatencyNs)
	}
	if c.RCU.Fanout < 2 {
		return errors.Errorf("rcu fanout must be at least 2, got %d", c.RCU.Fanout)
	}
	if c.Topology.CoresPerPackage < 0 {
		return errors.Errorf("cores-per-package must not be negative, got %d",
			c.Topology.CoresPerPackage)
	}
	return nil
}

var globalConf atomic.Pointer[Config]

func init() {
	globalConf.Store(NewConfig())
}

// GetGlobalConfig returns the global configuration.
// Other parts of the system read the shared tuning values through it.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig replaces the global configuration.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}
