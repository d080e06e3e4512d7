// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import "github.com/spf13/pflag"

// Unset is the sentinel value for an unset numeric limit, on the wire
// and in memory alike -- there is no separate boxed/optional
// representation, matching the source's use of -1 throughout.
const Unset = -1

// ErrorLevel selects whether an over-limit work_mem request is
// rejected outright or merely capped with a log line.
type ErrorLevel int32

const (
	// ErrorLevelUnset means qos.work_mem_error_level has not been
	// configured for the session's effective limits. The utility hook
	// treats it like ErrorLevelError.
	ErrorLevelUnset ErrorLevel = iota
	// ErrorLevelWarn logs an over-limit SET work_mem and lets it
	// proceed; the requested value is not lowered.
	ErrorLevelWarn
	// ErrorLevelError rejects the SET work_mem statement outright.
	ErrorLevelError
)

func (l ErrorLevel) String() string {
	switch l {
	case ErrorLevelWarn:
		return "warning"
	case ErrorLevelError:
		return "error"
	default:
		return "unset"
	}
}

var _ pflag.Value = (*ErrorLevel)(nil)

// Set implements pflag.Value, the same dual flag.Value/pflag.Value
// shape the teacher's humanizeutil.BytesValue uses, so an operator CLI
// flag (e.g. --qos-default-work-mem-error-level) can bind directly to
// an ErrorLevel without a separate adapter type.
func (l *ErrorLevel) Set(text string) error {
	v, err := parseErrorLevel(text)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Type implements pflag.Value.
func (l *ErrorLevel) Type() string { return "errorLevel" }

// CommandKind tags the four data-manipulation statement kinds the
// governor admits independently, plus the "no statement in flight"
// state recorded in a BackendStatus slot.
type CommandKind int32

const (
	CommandNone CommandKind = iota
	CommandSelect
	CommandUpdate
	CommandDelete
	CommandInsert
)

func (k CommandKind) String() string {
	switch k {
	case CommandSelect:
		return "SELECT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	case CommandInsert:
		return "INSERT"
	default:
		return "NONE"
	}
}

// Limits is the aggregate of optional integer bounds that make up one
// scope's configuration (role-only, database-only, or the folded
// effective limits for a session). Every numeric field uses Unset as
// its "not configured" sentinel.
type Limits struct {
	WorkMemBytes        int64
	CPUCoreLimit        int32
	MaxConcurrentTx     int32
	MaxConcurrentSelect int32
	MaxConcurrentUpdate int32
	MaxConcurrentDelete int32
	MaxConcurrentInsert int32
	WorkMemErrorLevel   ErrorLevel
}

// UnsetLimits returns a Limits struct with every field unset, the
// starting point for both a single-scope catalog read and a folded
// effective-limits computation.
func UnsetLimits() Limits {
	return Limits{
		WorkMemBytes:        Unset,
		CPUCoreLimit:        Unset,
		MaxConcurrentTx:     Unset,
		MaxConcurrentSelect: Unset,
		MaxConcurrentUpdate: Unset,
		MaxConcurrentDelete: Unset,
		MaxConcurrentInsert: Unset,
		WorkMemErrorLevel:   ErrorLevelUnset,
	}
}

// ForKind returns the concurrency limit for the given command kind.
// CommandNone has no associated limit and returns Unset.
func (l Limits) ForKind(kind CommandKind) int32 {
	switch kind {
	case CommandSelect:
		return l.MaxConcurrentSelect
	case CommandUpdate:
		return l.MaxConcurrentUpdate
	case CommandDelete:
		return l.MaxConcurrentDelete
	case CommandInsert:
		return l.MaxConcurrentInsert
	default:
		return Unset
	}
}

// MostRestrictive folds two scopes' Limits field by field: if both
// sides have a value, take the smaller; otherwise take whichever is
// set; otherwise the field stays unset. This is the invariant from
// spec ยง3 that the effective-limit cache relies on to combine
// the role and database scopes. The catalog reader does not use it.
func MostRestrictive(a, b Limits) Limits {
	return Limits{
		WorkMemBytes:        foldInt64(a.WorkMemBytes, b.WorkMemBytes),
		CPUCoreLimit:        foldInt32(a.CPUCoreLimit, b.CPUCoreLimit),
		MaxConcurrentTx:     foldInt32(a.MaxConcurrentTx, b.MaxConcurrentTx),
		MaxConcurrentSelect: foldInt32(a.MaxConcurrentSelect, b.MaxConcurrentSelect),
		MaxConcurrentUpdate: foldInt32(a.MaxConcurrentUpdate, b.MaxConcurrentUpdate),
		MaxConcurrentDelete: foldInt32(a.MaxConcurrentDelete, b.MaxConcurrentDelete),
		MaxConcurrentInsert: foldInt32(a.MaxConcurrentInsert, b.MaxConcurrentInsert),
		WorkMemErrorLevel:   foldErrorLevel(a.WorkMemErrorLevel, b.WorkMemErrorLevel),
	}
}

func foldInt64(a, b int64) int64 {
	switch {
	case a != Unset && b != Unset:
		if a < b {
			return a
		}
		return b
	case a != Unset:
		return a
	case b != Unset:
		return b
	default:
		return Unset
	}
}

func foldInt32(a, b int32) int32 {
	switch {
	case a != Unset && b != Unset:
		if a < b {
			return a
		}
		return b
	case a != Unset:
		return a
	case b != Unset:
		return b
	default:
		return Unset
	}
}

// foldErrorLevel picks the stricter of two policy settings when both
// are configured ("error" is stricter than "warning"); the role/db
// fold has no numeric "smaller", so ErrorLevelError wins ties.
func foldErrorLevel(a, b ErrorLevel) ErrorLevel {
	switch {
	case a != ErrorLevelUnset && b != ErrorLevelUnset:
		if a == ErrorLevelError || b == ErrorLevelError {
			return ErrorLevelError
		}
		return a
	case a != ErrorLevelUnset:
		return a
	case b != ErrorLevelUnset:
		return b
	default:
		return ErrorLevelUnset
	}
}

// Stats are the cluster-wide monotone counters described in spec ยง3.
type Stats struct {
	TotalAdmitted uint64
	Throttled     uint64
	Rejected      uint64

	WorkMemViolations          uint64
	CPUViolations              uint64
	ConcurrentTxViolations     uint64
	ConcurrentSelectViolations uint64
	ConcurrentUpdateViolations uint64
	ConcurrentDeleteViolations uint64
	ConcurrentInsertViolations uint64
}

// violationCounter returns a pointer to the violation counter matching
// a command kind, for admission.go to bump under the shared lock.
func (s *Stats) violationCounter(kind CommandKind) *uint64 {
	switch kind {
	case CommandSelect:
		return &s.ConcurrentSelectViolations
	case CommandUpdate:
		return &s.ConcurrentUpdateViolations
	case CommandDelete:
		return &s.ConcurrentDeleteViolations
	case CommandInsert:
		return &s.ConcurrentInsertViolations
	default:
		return &s.ConcurrentTxViolations
	}
}
