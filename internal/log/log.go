// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log mirrors the call-site idiom of the host's pkg/util/log
// (Infof/Warningf/VEventf taking a context and a redactable format
// string) without pulling in the host's clusterwide logging pipeline --
// log file rotation, crash reporting, and telemetry redaction policy are
// owned by the host process, not by an embedded per-session governor.
// Every line is tagged "qos:" per the operator-facing contract.
package log

import (
	"context"
	"log"

	"github.com/cockroachdb/redact"
)

// Infof logs an informational line tagged "qos:".
func Infof(ctx context.Context, format string, args ...interface{}) {
	log.Printf("qos: "+format, safeArgs(args)...)
}

// Warningf logs a warning line tagged "qos:".
func Warningf(ctx context.Context, format string, args ...interface{}) {
	log.Printf("qos: WARNING: "+format, safeArgs(args)...)
}

// VEventf logs a verbose/debug line tagged "qos:". The verbosity level
// is accepted for call-site parity with the host logger but this
// package does not implement per-level gating.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	log.Printf("qos: [v%d] "+format, append([]interface{}{level}, safeArgs(args)...)...)
}

// safeArgs marks each argument as safe for unredacted logging -- none of
// the values logged by this package (role/database identifiers, limit
// values, core counts) are end-user data.
func safeArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = redact.Safe(a)
	}
	return out
}
