// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import "testing"

func TestNewSharedStateStartsZeroed(t *testing.T) {
	s := NewSharedState(8)
	if !s.Enabled() {
		t.Error("expected qos.enabled to default to true")
	}
	if s.SettingsEpoch() != 0 {
		t.Errorf("SettingsEpoch = %d, want 0", s.SettingsEpoch())
	}
	if s.MaxBackends() != 8 {
		t.Errorf("MaxBackends = %d, want 8", s.MaxBackends())
	}
	for i, b := range s.backends {
		if b.occupied() {
			t.Errorf("backend slot %d occupied at startup", i)
		}
	}
}

func TestBumpSettingsEpoch(t *testing.T) {
	s := NewSharedState(1)
	s.BumpSettingsEpoch()
	s.BumpSettingsEpoch()
	if got := s.SettingsEpoch(); got != 2 {
		t.Errorf("SettingsEpoch = %d, want 2", got)
	}
}

func TestStatsSnapshotAndReset(t *testing.T) {
	s := NewSharedState(1)
	s.mu.Lock()
	s.stats.TotalAdmitted = 5
	s.stats.Rejected = 2
	s.mu.Unlock()

	snap := s.StatsSnapshot()
	if snap.TotalAdmitted != 5 || snap.Rejected != 2 {
		t.Errorf("got %+v", snap)
	}

	s.ResetStats()
	if got := s.StatsSnapshot(); got != (Stats{}) {
		t.Errorf("ResetStats left %+v, want zero value", got)
	}
}

func TestAffinityEntryMatches(t *testing.T) {
	e := AffinityEntry{DatabaseID: 1, RoleID: 2, NumCores: 2, Cores: [MaxCoresPerEntry]int{0, 1}}
	if !e.matches(1, 2) {
		t.Error("expected matching (database, role) to match")
	}
	if e.matches(1, 3) {
		t.Error("expected a different role not to match")
	}

	var empty AffinityEntry
	if empty.matches(NoDatabase, NoRole) {
		t.Error("an empty entry (DatabaseID == NoDatabase) must never match")
	}
}

func TestReleaseBackendSlot(t *testing.T) {
	s := NewSharedState(2)
	s.backends[0] = BackendStatus{PID: 42, RoleID: 1, DatabaseID: 1, CurrentCmd: CommandSelect}

	s.releaseBackendSlot(0)

	if s.backends[0].occupied() {
		t.Error("expected slot 0 to be released")
	}
	if s.backends[0] != (BackendStatus{}) {
		t.Errorf("expected slot 0 fully zeroed, got %+v", s.backends[0])
	}
}

func TestReleaseBackendSlotOutOfRangeIsNoOp(t *testing.T) {
	s := NewSharedState(2)
	s.releaseBackendSlot(-1)
	s.releaseBackendSlot(5)
}
