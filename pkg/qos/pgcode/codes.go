// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package pgcode holds the small slice of SQLSTATE-style error codes the
// governor surfaces to clients, mirroring the host's
// pkg/sql/pgwire/pgcode package without importing the whole catalog of
// codes the host defines for every SQL error.
package pgcode

// Code is a SQLSTATE-style error code.
type Code string

const (
	// InsufficientResources is surfaced when a session's work_mem
	// request exceeds qos.work_mem_limit.
	InsufficientResources Code = "53000"
	// ProgramLimitExceeded is surfaced when a concurrency admission
	// check rejects a transaction or statement.
	ProgramLimitExceeded Code = "54000"
	// InvalidParameterValue is surfaced by strict configuration
	// validation (SET qos.*, ALTER ROLE/DATABASE ... SET qos.*).
	InvalidParameterValue Code = "22023"
)
