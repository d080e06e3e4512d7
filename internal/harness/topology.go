// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package harness

import (
	"context"
	"sync"

	"github.com/cockroachdb/qos-governor/pkg/qos"
)

// Topology is a deterministic, in-memory qos.CoreTopology for tests:
// a fixed CPU count, no hardware cycle measurement (so callers
// exercise the round-robin fallback, exactly as a capability-restricted
// container would), and an affinity log callers can assert against
// instead of a real sched_setaffinity call.
type Topology struct {
	mu sync.Mutex

	TotalCPUs   int
	LastApplied []int
	ApplyCount  int
}

var _ qos.CoreTopology = (*Topology)(nil)

// NewTopology constructs a fake topology with totalCPUs online cores.
func NewTopology(totalCPUs int) *Topology {
	return &Topology{TotalCPUs: totalCPUs}
}

func (t *Topology) OnlineCPUCount() (int, error) {
	return t.TotalCPUs, nil
}

// MeasureLeastBusyCores always reports the platform as unavailable for
// hardware measurement, so tests exercise AffinityAssigner's
// round-robin fallback deterministically.
func (t *Topology) MeasureLeastBusyCores(ctx context.Context, total, requested int) ([]int, error) {
	return nil, qos.ErrPlatformUnavailable
}

func (t *Topology) SetAffinity(cores []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LastApplied = append([]int(nil), cores...)
	t.ApplyCount++
	return nil
}

// Applied returns the most recently applied core set.
func (t *Topology) Applied() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.LastApplied...)
}
