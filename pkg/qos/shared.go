// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import "github.com/cockroachdb/qos-governor/internal/syncutil"

const (
	// MaxAffinityEntries bounds the (database, role) -> core-set
	// table; once full, the oldest entry is evicted by left-shift
	// (spec ยง3).
	MaxAffinityEntries = 128
	// MaxCoresPerEntry bounds how many cores a single AffinityEntry
	// can record.
	MaxCoresPerEntry = 64
)

// BackendStatus is one slot of the per-backend status array, indexed
// by the host's stable backend index. It is exclusively mutated by the
// backend that owns the slot (under SharedState's lock) and read by
// any backend performing an admission scan (spec ยง3).
type BackendStatus struct {
	PID           int64
	RoleID        RoleID
	DatabaseID    DatabaseID
	CurrentCmd    CommandKind
	InTransaction bool
}

// occupied reports whether this slot currently belongs to a live
// backend.
func (b *BackendStatus) occupied() bool { return b.PID != 0 }

// AffinityEntry is one row of the bounded (database, role) -> core-set
// table described in spec ยง3 and ยง4.7.
type AffinityEntry struct {
	DatabaseID DatabaseID
	RoleID     RoleID
	NumCores   int
	Cores      [MaxCoresPerEntry]int
}

func (e *AffinityEntry) matches(dbID DatabaseID, roleID RoleID) bool {
	return e.DatabaseID != NoDatabase && e.DatabaseID == dbID && e.RoleID == roleID
}

func (e *AffinityEntry) coreSlice() []int {
	return append([]int(nil), e.Cores[:e.NumCores]...)
}

// SharedState is the single logical region described in spec ยง3: a
// process-wide singleton created once at host startup (after the host
// publishes MaxBackends) and destroyed at host shutdown. Every field is
// guarded by mu; nothing in this struct is safe to read without holding
// it, and no reader may retain a pointer into the region after
// releasing the lock.
type SharedState struct {
	mu syncutil.Mutex

	enabled bool

	stats Stats

	settingsEpoch uint32
	nextCPUCore   uint32

	affinityEntries []AffinityEntry // len <= MaxAffinityEntries, insertion order
	backends        []BackendStatus // len == maxBackends, indexed by backend index
}

// NewSharedState allocates the region sized for maxBackends backend
// slots, the way the host's shared-memory-startup hook sizes the
// region as sizeof(header) + MaxBackends*sizeof(BackendStatus) after
// the host's shared-memory-request hook has reserved it. All fields
// start zeroed/unset per spec ยง4.3: settings_epoch = 0, next_cpu_core =
// 0, every affinity entry's DatabaseID = NoDatabase, every backend
// slot's PID = 0.
func NewSharedState(maxBackends uint32) *SharedState {
	return &SharedState{
		enabled: true,
		backends: make([]BackendStatus, maxBackends),
	}
}

// SetEnabled toggles the process-wide qos.enabled flag (spec ยง6).
// When false, every public C5-C8 operation is a no-op.
func (s *SharedState) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Enabled reports the current value of qos.enabled.
func (s *SharedState) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// BumpSettingsEpoch increments settings_epoch under the lock. Called
// by the utility hook after the host successfully applies an ALTER
// ROLE/DATABASE ... SET qos.* (or RESET ALL) statement, per spec ยง4.8.
func (s *SharedState) BumpSettingsEpoch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settingsEpoch++
}

// SettingsEpoch reads the current epoch under the lock.
func (s *SharedState) SettingsEpoch() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsEpoch
}

// StatsSnapshot copies the Stats struct under the lock, for
// qos_get_stats().
func (s *SharedState) StatsSnapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ResetStats zeros the entire Stats struct under the lock, for
// qos_reset_stats().
func (s *SharedState) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = Stats{}
}

// MaxBackends returns the number of backend slots the region was
// sized for.
func (s *SharedState) MaxBackends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backends)
}

// releaseBackendSlot zeros a slot's PID, the safety net invoked when
// the host reports that a backend has exited, per spec ยง3's lifecycle
// note (slot is zeroed on process exit; the transaction-abort callback
// is a different, narrower safety net that only clears the in-flight
// command/transaction fields, not PID).
func (s *SharedState) releaseBackendSlot(backendIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if backendIndex < 0 || backendIndex >= len(s.backends) {
		return
	}
	s.backends[backendIndex] = BackendStatus{}
}
