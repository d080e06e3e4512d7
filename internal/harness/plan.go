// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package harness

import "github.com/cockroachdb/qos-governor/pkg/qos"

// Node is a fake plan node for planner-rewrite tests: a stand-in for
// the host's Gather/GatherMerge/every-other-node-type hierarchy,
// exposing only the accessors qos.PlanNode requires.
type Node struct {
	Parallel   bool
	Workers    int32
	LeftChild  *Node
	RightChild *Node
}

var _ qos.PlanNode = (*Node)(nil)

func (n *Node) IsParallelGather() bool { return n.Parallel }
func (n *Node) NumWorkers() int32      { return n.Workers }
func (n *Node) SetNumWorkers(w int32)  { n.Workers = w }

func (n *Node) Left() qos.PlanNode {
	if n.LeftChild == nil {
		return nil
	}
	return n.LeftChild
}

func (n *Node) Right() qos.PlanNode {
	if n.RightChild == nil {
		return nil
	}
	return n.RightChild
}

// Plan is a fake PlannedStatement: a root tree plus a list of
// subplans, mirroring the host's PlannedStmt.
type Plan struct {
	Root     *Node
	Subplans []*Node
}

var _ qos.PlannedStatement = (*Plan)(nil)

func (p *Plan) PlanTree() qos.PlanNode {
	if p.Root == nil {
		return nil
	}
	return p.Root
}

func (p *Plan) SubPlans() []qos.PlanNode {
	out := make([]qos.PlanNode, len(p.Subplans))
	for i, n := range p.Subplans {
		out[i] = n
	}
	return out
}
