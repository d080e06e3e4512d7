// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"context"

	"github.com/cockroachdb/qos-governor/internal/log"
)

// CoreTopology is the platform seam for the CPU-affinity assigner
// (spec ยง4.7, ยง7's PlatformUnavailable). Implementations live in
// affinity_linux.go (the one platform the source's sched_setaffinity
// call supports) and affinity_other.go (every other GOOS, where
// affinity control reduces to the planner rewriter alone).
type CoreTopology interface {
	// OnlineCPUCount returns the platform's online-CPU count T.
	OnlineCPUCount() (int, error)
	// MeasureLeastBusyCores samples per-CPU load over a brief window
	// and returns up to `requested` core indices, least-busy first.
	// Returns ErrPlatformUnavailable if the platform doesn't expose
	// the facility (permission, capability, or GOOS).
	MeasureLeastBusyCores(ctx context.Context, total, requested int) ([]int, error)
	// SetAffinity pins the calling process to exactly these cores.
	// Returns ErrPlatformUnavailable if the platform doesn't support
	// CPU affinity at all.
	SetAffinity(cores []int) error
}

// AffinityAssigner is the CPU-affinity assigner component (spec ยง4.7):
// at first execution of a session with a positive cpu_core_limit, it
// resolves (database, role) to a stable core set via SharedState's
// bounded, LRU-evicted affinity table, and applies that set to the
// current process.
type AffinityAssigner struct {
	shared   *SharedState
	topology CoreTopology
}

// NewAffinityAssigner constructs the assigner over the cluster-wide
// shared state and the platform's CoreTopology.
func NewAffinityAssigner(shared *SharedState, topology CoreTopology) *AffinityAssigner {
	return &AffinityAssigner{shared: shared, topology: topology}
}

// PinIfNeeded is the pin_affinity_if_needed entry point, invoked at
// executor start for a session that has not yet pinned (spec ยง4.7
// steps 1-4). alreadyPinned should reflect the session-local flag the
// caller tracks (a Session never re-pins once it has pinned once, per
// the Design Notes' affinity-stability note).
func (a *AffinityAssigner) PinIfNeeded(
	ctx context.Context, database DatabaseID, role RoleID, cpuCoreLimit int32, alreadyPinned bool,
) (pinned bool, err error) {
	if alreadyPinned {
		return true, nil
	}
	if cpuCoreLimit == Unset || cpuCoreLimit <= 0 {
		return false, nil
	}
	if !a.shared.Enabled() {
		return false, nil
	}

	total, err := a.topology.OnlineCPUCount()
	if err != nil {
		log.VEventf(ctx, 1, "CPU affinity unavailable on this platform: %v", err)
		return false, nil
	}

	requested := cpuCoreLimit
	if int(requested) > total {
		log.Warningf(ctx, "cpu_core_limit %d exceeds %d online CPUs, clamping", requested, total)
		requested = int32(total)
	}

	cores, err := a.getOrAssignCores(ctx, database, role, int(requested), total)
	if err != nil {
		return false, nil
	}

	if err := a.topology.SetAffinity(cores); err != nil {
		log.Warningf(ctx, "failed to set CPU affinity to %v: %v", cores, err)
		return false, nil
	}
	return true, nil
}

// getOrAssignCores implements the critical-section discipline of spec
// ยง4.7: a quick locked lookup, then (on miss) an unlocked, potentially
// slow core-selection pass, then a locked re-check-and-insert that
// prefers a concurrently-inserted entry over the caller's own tentative
// result.
func (a *AffinityAssigner) getOrAssignCores(
	ctx context.Context, database DatabaseID, role RoleID, requested, total int,
) ([]int, error) {
	if cores, ok := a.lookupLocked(database, role); ok {
		return cores, nil
	}

	tentative, err := a.selectCores(ctx, requested, total)
	if err != nil {
		return nil, err
	}

	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()

	for i := range a.shared.affinityEntries {
		if a.shared.affinityEntries[i].matches(database, role) {
			return a.shared.affinityEntries[i].coreSlice(), nil
		}
	}

	entry := AffinityEntry{DatabaseID: database, RoleID: role, NumCores: len(tentative)}
	copy(entry.Cores[:], tentative)

	entries := a.shared.affinityEntries
	emptySlot := -1
	for i := range entries {
		if entries[i].DatabaseID == NoDatabase {
			emptySlot = i
			break
		}
	}
	switch {
	case emptySlot >= 0:
		entries[emptySlot] = entry
	case len(entries) < MaxAffinityEntries:
		a.shared.affinityEntries = append(entries, entry)
	default:
		// Table is full: evict the oldest entry by left-shift and
		// place the new one last (spec ยง3, ยง4.7).
		copy(entries, entries[1:])
		entries[len(entries)-1] = entry
	}

	return tentative, nil
}

// lookupLocked performs the quick locked scan for an existing entry.
func (a *AffinityAssigner) lookupLocked(database DatabaseID, role RoleID) ([]int, bool) {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	for i := range a.shared.affinityEntries {
		if a.shared.affinityEntries[i].matches(database, role) {
			return a.shared.affinityEntries[i].coreSlice(), true
		}
	}
	return nil, false
}

// selectCores runs the core-selection routine outside the shared lock:
// hardware cycle measurement if the platform supports it, else
// round-robin from the shared cursor, per spec ยง4.7.
func (a *AffinityAssigner) selectCores(ctx context.Context, requested, total int) ([]int, error) {
	if cores, err := a.topology.MeasureLeastBusyCores(ctx, total, requested); err == nil {
		return cores, nil
	} else {
		log.VEventf(ctx, 2, "CPU cycle measurement unavailable, falling back to round-robin: %v", err)
	}
	return a.roundRobinCores(requested, total), nil
}

// roundRobinCores advances the shared round-robin cursor under the
// lock and returns `requested` consecutive core indices modulo total.
func (a *AffinityAssigner) roundRobinCores(requested, total int) []int {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()

	if total <= 0 {
		return nil
	}
	start := int(a.shared.nextCPUCore) % total
	a.shared.nextCPUCore = uint32((start + requested) % total)

	cores := make([]int, requested)
	for i := 0; i < requested; i++ {
		cores[i] = (start + i) % total
	}
	return cores
}
