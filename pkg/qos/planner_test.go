// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos_test

import (
	"testing"

	"github.com/cockroachdb/qos-governor/internal/harness"
	"github.com/cockroachdb/qos-governor/pkg/qos"
)

func TestRewritePlanClampsWorkers(t *testing.T) {
	root := &harness.Node{Parallel: true, Workers: 8}
	plan := &harness.Plan{Root: root}

	limits := qos.UnsetLimits()
	limits.CPUCoreLimit = 4

	qos.RewritePlan(plan, limits)

	if root.Workers != 3 {
		t.Errorf("Workers = %d, want 3 (cpu_core_limit-1)", root.Workers)
	}
}

func TestRewritePlanLeavesLowerWorkerCounts(t *testing.T) {
	root := &harness.Node{Parallel: true, Workers: 2}
	plan := &harness.Plan{Root: root}

	limits := qos.UnsetLimits()
	limits.CPUCoreLimit = 4

	qos.RewritePlan(plan, limits)

	if root.Workers != 2 {
		t.Errorf("Workers = %d, want unchanged 2 (already within the clamp)", root.Workers)
	}
}

func TestRewritePlanNoLimitIsNoOp(t *testing.T) {
	root := &harness.Node{Parallel: true, Workers: 8}
	plan := &harness.Plan{Root: root}

	qos.RewritePlan(plan, qos.UnsetLimits())

	if root.Workers != 8 {
		t.Errorf("Workers = %d, want unchanged 8 when cpu_core_limit is unset", root.Workers)
	}
}

func TestRewritePlanWalksChildrenAndSubplans(t *testing.T) {
	leftChild := &harness.Node{Parallel: true, Workers: 6}
	rightChild := &harness.Node{Parallel: true, Workers: 6}
	root := &harness.Node{LeftChild: leftChild, RightChild: rightChild}
	sub := &harness.Node{Parallel: true, Workers: 6}

	plan := &harness.Plan{Root: root, Subplans: []*harness.Node{sub}}

	limits := qos.UnsetLimits()
	limits.CPUCoreLimit = 2

	qos.RewritePlan(plan, limits)

	if leftChild.Workers != 1 || rightChild.Workers != 1 {
		t.Errorf("children not clamped: left=%d right=%d", leftChild.Workers, rightChild.Workers)
	}
	if sub.Workers != 1 {
		t.Errorf("subplan not clamped: %d", sub.Workers)
	}
}

func TestRewritePlanCPUCoreLimitOneYieldsZeroWorkers(t *testing.T) {
	root := &harness.Node{Parallel: true, Workers: 4}
	plan := &harness.Plan{Root: root}

	limits := qos.UnsetLimits()
	limits.CPUCoreLimit = 1

	qos.RewritePlan(plan, limits)

	if root.Workers != 0 {
		t.Errorf("Workers = %d, want 0 when cpu_core_limit is 1 (no cores left for workers)", root.Workers)
	}
}

func TestRewritePlanIdempotent(t *testing.T) {
	root := &harness.Node{Parallel: true, Workers: 8}
	plan := &harness.Plan{Root: root}

	limits := qos.UnsetLimits()
	limits.CPUCoreLimit = 4

	qos.RewritePlan(plan, limits)
	qos.RewritePlan(plan, limits)

	if root.Workers != 3 {
		t.Errorf("Workers = %d after two rewrites, want 3", root.Workers)
	}
}
