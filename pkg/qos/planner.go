// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

// PlanNode is the host's plan-tree node, exposed to this package only
// through the handful of accessors the rewriter needs. The host's real
// node types (Gather, GatherMerge, and every other plan node) implement
// this narrowly, the way the source's qos_adjust_parallel_workers walks
// Plan.lefttree/righttree without caring what concrete node type it's
// looking at except when IsA() tags it as a parallel gather.
type PlanNode interface {
	// IsParallelGather reports whether this node is a "parallel
	// gather" or "parallel gather-merge" node, per the host's plan
	// node tag.
	IsParallelGather() bool
	// NumWorkers returns this node's configured worker count. Only
	// meaningful when IsParallelGather() is true.
	NumWorkers() int32
	// SetNumWorkers clamps this node's worker count.
	SetNumWorkers(int32)
	// Left and Right are this node's two child-plan pointers (either
	// may be nil).
	Left() PlanNode
	Right() PlanNode
}

// PlannedStatement is the host's planner output: a root plan tree plus
// a list of subplans (the host's PlannedStmt.subplans), per spec ยง4.6.
type PlannedStatement interface {
	PlanTree() PlanNode
	SubPlans() []PlanNode
}

// RewritePlan clamps every parallel-gather/gather-merge node's worker
// count to max(0, cpu_core_limit-1) -- the main backend consumes one
// core, so the remaining cores fund parallel workers. If cpu_core_limit
// is unset or 0, RewritePlan does nothing. The traversal order is not
// observable and the operation is idempotent, per spec ยง4.6.
func RewritePlan(stmt PlannedStatement, limits Limits) {
	if limits.CPUCoreLimit == Unset || limits.CPUCoreLimit == 0 {
		return
	}

	maxWorkers := limits.CPUCoreLimit - 1
	if maxWorkers < 0 {
		maxWorkers = 0
	}

	rewriteNode(stmt.PlanTree(), maxWorkers)
	for _, sub := range stmt.SubPlans() {
		rewriteNode(sub, maxWorkers)
	}
}

// rewriteNode walks one plan tree depth-first, clamping every parallel
// gather/gather-merge node's worker count and descending into both
// children, per spec ยง4.6.
func rewriteNode(node PlanNode, maxWorkers int32) {
	if node == nil {
		return
	}
	if node.IsParallelGather() && node.NumWorkers() > maxWorkers {
		node.SetNumWorkers(maxWorkers)
	}
	rewriteNode(node.Left(), maxWorkers)
	rewriteNode(node.Right(), maxWorkers)
}
