// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"strings"
	"testing"
)

func TestGetStatsRendersSortedFields(t *testing.T) {
	shared := NewSharedState(1)
	shared.mu.Lock()
	shared.stats.TotalAdmitted = 3
	shared.stats.Rejected = 1
	shared.mu.Unlock()

	out := GetStats(shared)
	if !strings.Contains(out, "total_admitted: 3") {
		t.Errorf("missing total_admitted in %q", out)
	}
	if !strings.Contains(out, "rejected_queries: 1") {
		t.Errorf("missing rejected_queries in %q", out)
	}

	idx1 := strings.Index(out, "cpu_violations")
	idx2 := strings.Index(out, "rejected_queries")
	if idx1 < 0 || idx2 < 0 || idx1 > idx2 {
		t.Errorf("expected fields in sorted order, got %q", out)
	}
}

func TestResetStatsZeroes(t *testing.T) {
	shared := NewSharedState(1)
	shared.mu.Lock()
	shared.stats.TotalAdmitted = 99
	shared.mu.Unlock()

	ResetStats(shared)

	if got := shared.StatsSnapshot(); got.TotalAdmitted != 0 {
		t.Errorf("TotalAdmitted = %d after reset, want 0", got.TotalAdmitted)
	}
}

func TestProjectQoSSettingsFiltersNonQoSEntries(t *testing.T) {
	entries := []string{
		"qos.cpu_core_limit=4",
		"search_path=public",
		"qos.max_concurrent_select=2",
	}
	rows := ProjectQoSSettings(DatabaseID(1), RoleID(2), entries)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if !strings.HasPrefix(r.Name, "qos.") {
			t.Errorf("row %+v leaked a non-qos entry", r)
		}
		if r.DatabaseID != 1 || r.RoleID != 2 {
			t.Errorf("row %+v has wrong identity", r)
		}
	}
}

func TestVersion(t *testing.T) {
	if got := Version(); !strings.HasPrefix(got, "qos-governor ") {
		t.Errorf("Version() = %q", got)
	}
}
