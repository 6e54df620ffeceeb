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
	"github.com/assembler-0/aerosched/config"
	"github.com/assembler-0/aerosched/cpumask"
)

// Group is one sibling set inside a Domain; the balancer compares groups
// by aggregate load.
type Group struct {
	Span cpumask.Mask
}

// Domain is one level of the static CPU hierarchy. The balancer walks from
// a CPU's lowest domain outward through parent links. Built once at init,
// immutable afterwards.
type Domain struct {
	Name   string
	Span   cpumask.Mask
	Groups []*Group
	Parent *Domain
}

// buildTopology constructs the domain hierarchy from the configured
// package layout: a per-package level whose groups are single CPUs, and,
// when there is more than one package, a top level whose groups are the
// packages.
func (s *Scheduler) buildTopology(topo config.Topology) {
	cpp := topo.CoresPerPackage
	if cpp <= 0 || cpp > s.numCPUs {
		cpp = s.numCPUs
	}

	nrPackages := (s.numCPUs + cpp - 1) / cpp
	var top *Domain
	if nrPackages > 1 {
		top = &Domain{Name: "pkg", Span: cpumask.Full(s.numCPUs)}
		for p := 0; p < nrPackages; p++ {
			span := cpumask.New(s.numCPUs)
			for c := p * cpp; c < (p+1)*cpp && c < s.numCPUs; c++ {
				span.Set(c)
			}
			top.Groups = append(top.Groups, &Group{Span: span})
		}
	}

	for p := 0; p < nrPackages; p++ {
		span := cpumask.New(s.numCPUs)
		var groups []*Group
		for c := p * cpp; c < (p+1)*cpp && c < s.numCPUs; c++ {
			span.Set(c)
			groups = append(groups, &Group{Span: cpumask.Of(s.numCPUs, c)})
		}
		dom := &Domain{Name: "core", Span: span, Groups: groups, Parent: top}
		span.ForEach(func(c int) {
			s.rqs[c].sd = dom
		})
	}
}

// localGroup returns the group of d containing cpu.
func (d *Domain) localGroup(cpu int) *Group {
	for _, g := range d.Groups {
		if g.Span.Test(cpu) {
			return g
		}
	}
	return nil
}
