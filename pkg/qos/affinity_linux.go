// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

//go:build linux

package qos

import (
	"context"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// linuxTopology implements CoreTopology on the one platform the
// source's sched_setaffinity call supports, grounded on the teacher's
// platform-gated files (pkg/util/sysutil, pkg/util/cgroups) that reach
// for golang.org/x/sys/unix rather than cgo for raw syscalls.
type linuxTopology struct{}

// NewHostTopology returns the CoreTopology for this process's GOOS.
func NewHostTopology() CoreTopology { return linuxTopology{} }

func (linuxTopology) OnlineCPUCount() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, errors.Wrap(err, "qos: sched_getaffinity")
	}
	return set.Count(), nil
}

func (linuxTopology) SetAffinity(cores []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cores {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrap(err, "qos: sched_setaffinity")
	}
	return nil
}

// MeasureLeastBusyCores samples /proc/stat's per-CPU jiffy counters
// across a brief window and returns the `requested` cores with the
// smallest delta in busy ticks (user+nice+system+irq+softirq),
// approximating "least busy" per
// spec ยง4.7 without requiring perf_event_open capabilities. Returns
// ErrPlatformUnavailable if /proc/stat cannot be read (e.g. a
// restricted container), so the caller falls back to round-robin.
func (linuxTopology) MeasureLeastBusyCores(
	ctx context.Context, total, requested int,
) ([]int, error) {
	if requested <= 0 || requested > total {
		requested = total
	}

	before, err := readProcStatCPUTicks()
	if err != nil {
		return nil, ErrPlatformUnavailable
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	runtime.Gosched()

	after, err := readProcStatCPUTicks()
	if err != nil {
		return nil, ErrPlatformUnavailable
	}

	type load struct {
		core  int
		delta uint64
	}
	loads := make([]load, 0, total)
	for core := 0; core < total; core++ {
		b, ok1 := before[core]
		a, ok2 := after[core]
		if !ok1 || !ok2 {
			continue
		}
		delta := a - b
		if a < b {
			delta = 0
		}
		loads = append(loads, load{core: core, delta: delta})
	}
	if len(loads) == 0 {
		return nil, ErrPlatformUnavailable
	}

	sort.Slice(loads, func(i, j int) bool { return loads[i].delta < loads[j].delta })

	if requested > len(loads) {
		requested = len(loads)
	}
	cores := make([]int, requested)
	for i := 0; i < requested; i++ {
		cores[i] = loads[i].core
	}
	return cores, nil
}

// readProcStatCPUTicks reads the busy-tick total (user+nice+system+irq+
// softirq) for each "cpuN" line of /proc/stat.
func readProcStatCPUTicks() (map[int]uint64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return nil, err
	}
	result := make(map[int]uint64)
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu") || strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		coreStr := strings.TrimPrefix(fields[0], "cpu")
		core, err := strconv.Atoi(coreStr)
		if err != nil {
			continue
		}
		var busy uint64
		// user, nice, system, irq, softirq -- skip idle (index 4) and
		// iowait (index 5), which do not represent contention for the
		// "least busy core" heuristic.
		for _, idx := range []int{1, 2, 3, 6, 7} {
			v, err := strconv.ParseUint(fields[idx], 10, 64)
			if err != nil {
				return nil, err
			}
			busy += v
		}
		result[core] = busy
	}
	return result, nil
}
