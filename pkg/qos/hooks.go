// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"context"

	"github.com/cockroachdb/qos-governor/internal/log"
)

// UtilityKind tags the handful of utility statements the hook glue
// cares about (spec ยง4.8); every other statement is UtilityOther and
// passes through untouched.
type UtilityKind int

const (
	UtilityOther UtilityKind = iota
	// UtilitySetWorkMem is "SET work_mem = V".
	UtilitySetWorkMem
	// UtilitySetQoS is "SET qos.<name> = V".
	UtilitySetQoS
	// UtilityAlterRoleSet is "ALTER ROLE ... SET ...".
	UtilityAlterRoleSet
	// UtilityAlterDatabaseSet is "ALTER DATABASE ... SET ...".
	UtilityAlterDatabaseSet
	// UtilityExplain is "EXPLAIN ..." (Analyze distinguishes EXPLAIN
	// ANALYZE, which does execute and so must not suppress admission).
	UtilityExplain
	// UtilityPrepare is "PREPARE ...".
	UtilityPrepare
)

// UtilityStatement describes the shape of a utility statement the host
// hands to the utility hook, reduced to the fields spec ยง4.8 needs.
type UtilityStatement struct {
	Kind UtilityKind

	// SettingName/SettingValue are populated for UtilitySetWorkMem and
	// UtilitySetQoS.
	SettingName  string
	SettingValue string

	// Analyze distinguishes EXPLAIN ANALYZE (executes for real) from
	// plain EXPLAIN (does not), for UtilityExplain.
	Analyze bool

	// InnerSettingName/AppliedByHost describe the ALTER ROLE/DATABASE
	// ... SET payload: the inner setting name (or "RESET ALL"), and
	// whether the host has already applied it successfully by the time
	// the utility hook runs the post-dispatch half of its logic.
	InnerSettingName string
	AppliedByHost    bool
}

// Governor owns the process-lifetime handles shared by every session:
// the cluster-wide shared state, the catalog reader, and the CPU
// affinity assigner. It is created once, during the host's
// shared-memory-startup hook, and never freed (Design Notes ยง9).
type Governor struct {
	Shared   *SharedState
	Catalog  CatalogReader
	Affinity *AffinityAssigner
}

// NewGovernor constructs the process-wide governor.
func NewGovernor(shared *SharedState, catalog CatalogReader, topology CoreTopology) *Governor {
	return &Governor{
		Shared:   shared,
		Catalog:  catalog,
		Affinity: NewAffinityAssigner(shared, topology),
	}
}

// Session is the per-backend, per-thread state the host creates once
// per connection: the session-local cache, the admission tracker, and
// the two flags ("suppress admission this utility call" and "already
// pinned CPU affinity") that only ever live as long as the backend
// process, per Design Notes ยง9.
type Session struct {
	governor *Governor
	tracker  *Tracker
	cache    *SessionCache

	role     RoleID
	database DatabaseID

	suppressAdmission bool
	cpuPinned         bool
}

// NewSession creates the per-backend session handle. backendIndex and
// pid identify this backend's slot in the shared backend table.
func (g *Governor) NewSession(backendIndex int, pid int64, role RoleID, database DatabaseID) *Session {
	s := &Session{
		governor: g,
		tracker:  NewTracker(g.Shared, backendIndex, pid),
		cache:    NewSessionCache(g.Shared, g.Catalog),
		role:     role,
		database: database,
	}
	s.tracker.SetIdentity(role, database)
	return s
}

// SetRoleAndDatabase updates the session's current role/database (e.g.
// after SET ROLE or a database switch), invalidating the
// effective-limit cache for the new identity.
func (s *Session) SetRoleAndDatabase(role RoleID, database DatabaseID) {
	s.role = role
	s.database = database
	s.tracker.SetIdentity(role, database)
	s.cache.Invalidate()
}

// InvalidateOnRoleCatalogChange is the host invalidation entry point
// for "role catalog changed" (spec ยง4.4).
func (s *Session) InvalidateOnRoleCatalogChange() { s.cache.Invalidate() }

// InvalidateOnDatabaseCatalogChange is the host invalidation entry
// point for "database catalog changed" (spec ยง4.4).
func (s *Session) InvalidateOnDatabaseCatalogChange() { s.cache.Invalidate() }

// InvalidateOnSettingsRelcacheEvent is the relcache-event hook for the
// settings catalog itself (spec ยง4.4, ยง6).
func (s *Session) InvalidateOnSettingsRelcacheEvent() { s.cache.Invalidate() }

// effectiveLimits is a small helper every hook below uses to refresh
// and read this session's effective limits. It is only legal to call
// from a statement boundary (Design Notes ยง9's "Catalog I/O legality").
func (s *Session) effectiveLimits(ctx context.Context) (Limits, error) {
	return s.cache.GetEffectiveLimits(ctx, s.role, s.database)
}

// UtilityHook runs before the host's utility dispatch (spec ยง4.8,
// bullet 1). It enforces SET work_mem against the cached limit,
// validates direct SET qos.* in strict mode, bumps settings_epoch
// after a successful ALTER ROLE/DATABASE ... SET qos.* (or RESET ALL),
// and sets the "suppress admission" flag for EXPLAIN (without ANALYZE)
// and PREPARE.
func (s *Session) UtilityHook(ctx context.Context, stmt UtilityStatement) error {
	if !s.governor.Shared.Enabled() {
		return nil
	}

	switch stmt.Kind {
	case UtilitySetWorkMem:
		return s.enforceWorkMem(ctx, stmt.SettingValue)

	case UtilitySetQoS:
		limits := UnsetLimits()
		if err := ApplyValue(&limits, stmt.SettingName, stmt.SettingValue, true /* strict */); err != nil {
			if ive, ok := err.(*InvalidValueError); ok {
				return ive.AsPGError()
			}
			if ine, ok := err.(*InvalidNameError); ok {
				return ine.AsPGError()
			}
			return err
		}
		return nil

	case UtilityAlterRoleSet, UtilityAlterDatabaseSet:
		if stmt.AppliedByHost && (IsValidName(stmt.InnerSettingName) || stmt.InnerSettingName == "RESET ALL") {
			s.governor.Shared.BumpSettingsEpoch()
			log.VEventf(ctx, 2, "settings_epoch bumped after %q", stmt.InnerSettingName)
		}
		return nil

	case UtilityExplain:
		s.suppressAdmission = !stmt.Analyze
		return nil

	case UtilityPrepare:
		s.suppressAdmission = true
		return nil

	default:
		return nil
	}
}

// enforceWorkMem implements SET work_mem's dual enforcement sites (the
// Open Question in spec ยง9): work_mem_error_level = error rejects the
// statement, and so does an unset level; = warning logs a warning and
// lets the statement proceed. The requested work_mem is not lowered:
// the hook only returns an error or nil.
func (s *Session) enforceWorkMem(ctx context.Context, valueText string) error {
	limits, err := s.effectiveLimits(ctx)
	if err != nil {
		return err
	}
	if limits.WorkMemBytes == Unset {
		return nil
	}

	requested, err := ParseMemory(valueText)
	if err != nil {
		return err
	}
	if requested <= limits.WorkMemBytes {
		return nil
	}

	s.governor.Shared.mu.Lock()
	s.governor.Shared.stats.WorkMemViolations++
	s.governor.Shared.mu.Unlock()

	wmErr := &WorkMemExceededError{RequestedKB: requested / 1024, MaxKB: limits.WorkMemBytes / 1024}
	if limits.WorkMemErrorLevel == ErrorLevelWarn {
		log.Warningf(ctx, "work_mem request of %d KB exceeds limit of %d KB", wmErr.RequestedKB, wmErr.MaxKB)
		return nil
	}
	return wmErr.AsPGError()
}

// PlannerHook refreshes the effective-limit cache, admits the
// transaction and statement (unless suppressed), invokes the host
// planner (via the caller-supplied plan function, since planning
// itself is a host collaborator out of scope per spec ยง1), and
// rewrites the resulting plan's parallel-worker counts.
func (s *Session) PlannerHook(
	ctx context.Context, kind CommandKind, plan func() (PlannedStatement, error),
) (PlannedStatement, error) {
	if !s.governor.Shared.Enabled() {
		return plan()
	}

	limits, err := s.effectiveLimits(ctx)
	if err != nil {
		return nil, err
	}

	if !s.suppressAdmission {
		if err := s.tracker.AdmitTransaction(limits.MaxConcurrentTx); err != nil {
			return nil, asPGErr(err)
		}
		if err := s.tracker.AdmitStatement(kind, limits.ForKind(kind)); err != nil {
			return nil, asPGErr(err)
		}
	}

	stmt, err := plan()
	if err != nil {
		return nil, err
	}

	RewritePlan(stmt, limits)
	return stmt, nil
}

// ExecutorStartHook pins CPU affinity if needed and, as a safety net
// for execution paths that never ran the planner hook (e.g. EXECUTE of
// a prepared statement), admits the transaction/statement -- admission
// is idempotent, so this never double-counts a statement the planner
// hook already admitted.
func (s *Session) ExecutorStartHook(ctx context.Context, kind CommandKind) error {
	if !s.governor.Shared.Enabled() {
		return nil
	}

	limits, err := s.effectiveLimits(ctx)
	if err != nil {
		return err
	}

	pinned, err := s.governor.Affinity.PinIfNeeded(ctx, s.database, s.role, limits.CPUCoreLimit, s.cpuPinned)
	if err != nil {
		return err
	}
	s.cpuPinned = pinned

	if s.suppressAdmission {
		return nil
	}
	if err := s.tracker.AdmitTransaction(limits.MaxConcurrentTx); err != nil {
		return asPGErr(err)
	}
	if err := s.tracker.AdmitStatement(kind, limits.ForKind(kind)); err != nil {
		return asPGErr(err)
	}
	return nil
}

// asPGErr renders an admission error into the host's three-field error
// shape when possible, passing any other error through unchanged.
func asPGErr(err error) error {
	if le, ok := err.(*LimitExceededError); ok {
		return le.AsPGError()
	}
	return err
}

// ExecutorEndHook releases statement and transaction tracking on the
// normal completion path.
func (s *Session) ExecutorEndHook() {
	s.tracker.EndStatement()
	s.tracker.EndTransaction()
	s.suppressAdmission = false
}

// TransactionAbortHook is the sole recovery path for counters when a
// statement fails mid-execution, or when a parallel worker aborts
// (spec ยง4.5 "Abort safety", ยง9's parallel-abort note). It must be
// registered for both regular aborts and parallel-worker aborts.
func (s *Session) TransactionAbortHook() {
	s.tracker.EndStatement()
	s.tracker.EndTransaction()
	s.suppressAdmission = false
}
