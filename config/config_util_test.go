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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneConf(t *testing.T) {
	c1, err := CloneConf(NewConfig())
	require.NoError(t, err)
	c2, err := CloneConf(c1)
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	c1.Scheduler.LatencyNs = 123
	require.NotEqual(t, c1.Scheduler.LatencyNs, c2.Scheduler.LatencyNs)
}

func TestMergeConfigItems(t *testing.T) {
	oriConf, _ := CloneConf(NewConfig())
	oldConf, _ := CloneConf(oriConf)
	newConf, _ := CloneConf(oriConf)

	// Tunables accept updates.
	newConf.Scheduler.LatencyNs = 12345678
	newConf.Scheduler.RRTimesliceTicks = 11
	newConf.RCU.StallTicks = 77
	newConf.Log.Level = "debug"
	// Structural items reject them.
	newConf.NumCPUs = 64
	newConf.RCU.Fanout = 4
	newConf.Topology.CoresPerPackage = 2

	accepted, rejected := MergeConfigItems(oldConf, newConf)
	require.ElementsMatch(t, []string{
		"Scheduler.LatencyNs", "Scheduler.RRTimesliceTicks",
		"RCU.StallTicks", "Log.Level",
	}, accepted)
	require.ElementsMatch(t, []string{
		"NumCPUs", "RCU.Fanout", "Topology.CoresPerPackage",
	}, rejected)

	require.Equal(t, uint64(12345678), oldConf.Scheduler.LatencyNs)
	require.Equal(t, "debug", oldConf.Log.Level)
	require.Equal(t, oriConf.NumCPUs, oldConf.NumCPUs)
	require.Equal(t, oriConf.RCU.Fanout, oldConf.RCU.Fanout)
}

func TestRewriteConfigRoundTrip(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "sched.toml")
	c := NewConfig()
	c.NumCPUs = 4
	c.Scheduler.LatencyNs = 9000000
	require.NoError(t, RewriteConfig(c, confPath))

	loaded := NewConfig()
	require.NoError(t, loaded.Load(confPath))
	require.Equal(t, 4, loaded.NumCPUs)
	require.Equal(t, uint64(9000000), loaded.Scheduler.LatencyNs)
}
