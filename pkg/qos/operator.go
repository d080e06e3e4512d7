// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"fmt"
	"sort"
	"strings"
)

// version is bumped alongside releases of this module. Packaging and
// the version banner itself are host collaborators out of scope per
// spec ยง1; this is the literal the host's qos_version() builtin
// returns.
const version = "1.0.0"

// Version returns the text qos_version() surfaces to clients (spec
// ยง6).
func Version() string {
	return "qos-governor " + version
}

// GetStats renders a point-in-time snapshot of the cluster-wide Stats
// as a stable, sorted "name: value" text block, the shape
// qos_get_stats() -> text surfaces (spec ยง6). The snapshot is taken
// under SharedState's lock; this function itself does no locking of
// its own beyond what StatsSnapshot already does.
func GetStats(shared *SharedState) string {
	s := shared.StatsSnapshot()
	fields := map[string]uint64{
		"total_admitted":               s.TotalAdmitted,
		"throttled":                    s.Throttled,
		"rejected_queries":             s.Rejected,
		"work_mem_violations":          s.WorkMemViolations,
		"cpu_violations":               s.CPUViolations,
		"concurrent_tx_violations":     s.ConcurrentTxViolations,
		"concurrent_select_violations": s.ConcurrentSelectViolations,
		"concurrent_update_violations": s.ConcurrentUpdateViolations,
		"concurrent_delete_violations": s.ConcurrentDeleteViolations,
		"concurrent_insert_violations": s.ConcurrentInsertViolations,
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %d\n", name, fields[name])
	}
	return b.String()
}

// ResetStats implements qos_reset_stats() -> void (spec ยง6): zeros the
// entire Stats struct under the lock.
func ResetStats(shared *SharedState) {
	shared.ResetStats()
}

// SettingsRow is one row of the qos_settings read-only view (spec
// ยง6): a thin projection over the setting catalog's "qos.*" entries,
// not part of the core per spec ยง1.
type SettingsRow struct {
	DatabaseID DatabaseID
	RoleID     RoleID
	Name       string
	Value      string
}

// ProjectQoSSettings filters a catalog row's raw entries down to the
// ones that begin with "qos.", for the qos_settings view. Unlike
// ParseConfigEntries it does not interpret the values -- the view
// surfaces the raw persisted text.
func ProjectQoSSettings(databaseID DatabaseID, roleID RoleID, entries []string) []SettingsRow {
	var rows []SettingsRow
	for _, raw := range entries {
		name, value, err := ParseEntry(raw)
		if err != nil || !strings.HasPrefix(name, "qos.") {
			continue
		}
		rows = append(rows, SettingsRow{DatabaseID: databaseID, RoleID: roleID, Name: name, Value: value})
	}
	return rows
}
