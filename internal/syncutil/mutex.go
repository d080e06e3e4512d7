// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package syncutil adapts the host's mutex wrapper (pkg/util/syncutil) for
// use inside the governor: a sync.Mutex that also answers "is someone
// holding me right now", so admission and affinity code can assert the
// critical-section discipline described in the design instead of relying
// solely on the race detector.
package syncutil

import "sync"

// Mutex is a mutual exclusion lock guarding the shared region.
type Mutex struct {
	sync.Mutex
}

// AssertHeld panics if no goroutine holds the lock. It does not require
// that the calling goroutine itself is the holder, only that some
// goroutine is -- sufficient to catch call sites that forgot to lock at
// all, which is the failure mode that matters for the critical sections
// in this package.
func (m *Mutex) AssertHeld() {
	if m.TryLock() {
		m.Unlock()
		panic("syncutil: mutex is not locked")
	}
}
