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

package rcu

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/assembler-0/aerosched/config"
)

func TestMain(m *testing.M) {
	opts := []goleak.Option{
		goleak.IgnoreTopFunction("github.com/pingcap/log.init.0.func1"),
	}
	goleak.VerifyTestMain(m, opts...)
}

// newTestState builds a State without background threads; tests drive the
// pipeline through CheckCallbacks, ReportQS and Synchronize.
func newTestState(t *testing.T, cpus, fanout int) *State {
	t.Helper()
	cfg := config.NewConfig()
	cfg.NumCPUs = cpus
	if fanout > 0 {
		cfg.RCU.Fanout = fanout
	}
	s, err := NewState(cfg)
	require.NoError(t, err)
	return s
}
