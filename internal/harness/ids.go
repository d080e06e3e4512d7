// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package harness

import "github.com/google/uuid"

// NewPID synthesizes a process identifier unlikely to collide with any
// other backend in the same test binary, the way the teacher mints
// node and session identifiers with uuid rather than a shared
// monotonic counter that tests would otherwise have to coordinate.
func NewPID() int64 {
	id := uuid.New()
	v := int64(uint64(id[0])<<56 | uint64(id[1])<<48 | uint64(id[2])<<40 | uint64(id[3])<<32 |
		uint64(id[4])<<24 | uint64(id[5])<<16 | uint64(id[6])<<8 | uint64(id[7]))
	if v == 0 {
		v = 1
	}
	if v < 0 {
		v = -v
	}
	return v
}
