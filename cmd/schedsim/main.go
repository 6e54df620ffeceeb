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

// schedsim drives the scheduler model with synthetic load: it creates a
// mix of fair, round-robin and deadline tasks over a set of simulated
// CPUs, runs the tick loop for a while, and dumps the collected metrics.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/assembler-0/aerosched/config"
	"github.com/assembler-0/aerosched/metrics"
	"github.com/assembler-0/aerosched/sched"
	"github.com/assembler-0/aerosched/util/logutil"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const tickNs = 1000 * 1000

var (
	configPath = pflag.String("config", "", "path to a TOML config file")
	numCPUs    = pflag.Int("cpus", 4, "number of simulated CPUs")
	numTasks   = pflag.Int("tasks", 16, "number of synthetic tasks")
	numTicks   = pflag.Uint64("ticks", 10000, "number of 1ms ticks to simulate")
	seed       = pflag.Int64("seed", 1, "seed of the synthetic workload")
)

func main() {
	pflag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "schedsim:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.NewConfig()
	if *configPath != "" {
		if err := cfg.Load(*configPath); err != nil {
			return err
		}
	}
	cfg.NumCPUs = *numCPUs
	config.StoreGlobalConfig(cfg)
	if err := logutil.InitLogger(&cfg.Log); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics.RegisterMetrics(registry)

	clock := sched.NewManualClock()
	s, err := sched.NewScheduler(cfg, sched.WithClock(clock))
	if err != nil {
		return err
	}
	s.Start()
	defer s.Stop()

	rng := rand.New(rand.NewSource(*seed))
	tasks := make([]*sched.Task, 0, *numTasks)
	for i := 0; i < *numTasks; i++ {
		t := s.NewTask("sim/" + strconv.Itoa(i))
		switch rng.Intn(8) {
		case 0:
			if err := s.SetScheduler(t, sched.PolicyRR, 1+rng.Intn(sched.MaxRTPrio-1)); err != nil {
				return err
			}
		case 1:
			if err := s.SetScheduler(t, sched.PolicyDeadline, 0); err != nil {
				return err
			}
		default:
			s.SetNice(t, rng.Intn(sched.MaxNice-sched.MinNice+1)+sched.MinNice)
		}
		tasks = append(tasks, t)
		s.WakeUp(t)
	}

	for tick := uint64(0); tick < *numTicks; tick++ {
		clock.Advance(tickNs)
		for cpu := 0; cpu < s.NumCPUs(); cpu++ {
			s.Tick(cpu)
			s.CheckPreempt(cpu)
		}
		// A little churn: sometimes a task naps and gets woken later.
		if tick%997 == 0 {
			cpu := rng.Intn(s.NumCPUs())
			s.Sleep(cpu, sched.TaskInterruptible)
		}
		if tick%1009 == 0 {
			s.WakeUp(tasks[rng.Intn(len(tasks))])
		}
		// The config file doubles as a live tuning knob: re-read it
		// halfway through so edits made during a long run take effect.
		if *configPath != "" && tick == *numTicks/2 {
			fresh := config.NewConfig()
			if err := fresh.Load(*configPath); err != nil {
				return err
			}
			if _, _, err := s.ApplyConfig(fresh); err != nil {
				return err
			}
		}
	}

	log.Info("simulation finished", zap.Uint64("ticks", *numTicks))
	return dumpMetrics(registry)
}

func dumpMetrics(registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			val := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			if val == 0 {
				continue
			}
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += " " + lp.GetName() + "=" + lp.GetValue()
			}
			fmt.Printf("%s%s %v\n", mf.GetName(), labels, val)
		}
	}
	return nil
}
