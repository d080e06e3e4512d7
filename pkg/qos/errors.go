// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/qos-governor/pkg/qos/pgcode"
)

// InvalidNameError is raised by ApplyValue(strict=true) when the
// setting name does not start with "qos." or is not one of the
// recognized names.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return "qos: invalid setting name \"" + e.Name + "\""
}

// InvalidValueError is raised by ApplyValue(strict=true) when the
// setting name is recognized but the value does not parse.
type InvalidValueError struct {
	Name, Value string
	Cause       error
}

func (e *InvalidValueError) Error() string {
	return "qos: invalid value \"" + e.Value + "\" for setting \"" + e.Name + "\""
}

func (e *InvalidValueError) Unwrap() error { return e.Cause }

// LimitExceededError is raised by admission when a concurrency limit
// (transaction count, or per-command-kind statement count) is hit.
type LimitExceededError struct {
	Kind    string
	Current int32
	Max     int32
}

func (e *LimitExceededError) Error() string {
	return "qos: maximum concurrent " + e.Kind + " exceeded"
}

// AsPGError renders a LimitExceededError into the host's three-field
// error shape (message, detail, hint) per spec ยง6, carried on a
// cockroachdb/errors error tagged with ProgramLimitExceeded.
func (e *LimitExceededError) AsPGError() error {
	err := errors.Newf("qos: maximum concurrent %s exceeded", e.Kind)
	err = errors.WithDetailf(err, "Current: %d, Maximum: %d", e.Current, e.Max)
	err = errors.WithHint(err, "Wait for other queries to complete")
	return withCode(err, pgcode.ProgramLimitExceeded)
}

// WorkMemExceededError is raised in the utility hook on SET work_mem
// when work_mem_error_level is error or unset.
type WorkMemExceededError struct {
	RequestedKB, MaxKB int64
}

func (e *WorkMemExceededError) Error() string {
	return "qos: work_mem limit exceeded"
}

// AsPGError renders a WorkMemExceededError into the host's three-field
// error shape, tagged with InsufficientResources.
func (e *WorkMemExceededError) AsPGError() error {
	err := errors.Newf("qos: work_mem limit exceeded")
	err = errors.WithDetailf(err, "Requested %d KB, maximum allowed is %d KB", e.RequestedKB, e.MaxKB)
	err = errors.WithHintf(err, "Contact administrator to increase qos.work_mem_limit")
	return withCode(err, pgcode.InsufficientResources)
}

// ErrPlatformUnavailable is returned by a CoreTopology when the
// platform cannot provide the facility asked for: per-CPU load
// measurement, the online-CPU count, or CPU affinity. It is
// internal-only: callers
// degrade silently, per spec ยง7.
var ErrPlatformUnavailable = errors.New("qos: platform does not support CPU affinity")

// codedError attaches a pgcode.Code to an error produced by this
// package, the way the host's pgerror.Wrap attaches a candidate
// SQLSTATE code onto a cockroachdb/errors chain.
type codedError struct {
	error
	code pgcode.Code
}

func (e *codedError) Unwrap() error { return e.error }

func withCode(err error, code pgcode.Code) error {
	return &codedError{error: err, code: code}
}

// CodeOf extracts the pgcode.Code attached to an error produced by
// AsPGError, or "" if the error carries none.
func CodeOf(err error) pgcode.Code {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return ""
}
