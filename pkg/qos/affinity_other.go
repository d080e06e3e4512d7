// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

//go:build !linux

package qos

import "context"

// otherTopology is the degrade-silently CoreTopology for every
// platform other than Linux: CPU control reduces to the planner
// rewriter (spec ยง4.6) alone, per spec ยง4.7's platform-gating note.
type otherTopology struct{}

// NewHostTopology returns the CoreTopology for this process's GOOS.
func NewHostTopology() CoreTopology { return otherTopology{} }

func (otherTopology) OnlineCPUCount() (int, error) {
	return 0, ErrPlatformUnavailable
}

func (otherTopology) MeasureLeastBusyCores(ctx context.Context, total, requested int) ([]int, error) {
	return nil, ErrPlatformUnavailable
}

func (otherTopology) SetAffinity(cores []int) error {
	return ErrPlatformUnavailable
}
