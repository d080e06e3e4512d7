// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

// Tracker is the concurrency-admission component for one backend
// (spec ยง4.5). It scans SharedState's backend table under the shared
// exclusive lock to count peers, admits or rejects the current
// statement/transaction, and registers this backend's slot atomically
// with the check.
type Tracker struct {
	shared       *SharedState
	backendIndex int
	pid          int64

	role     RoleID
	database DatabaseID

	txTracked   bool
	stmtTracked bool
}

// NewTracker binds a Tracker to one backend slot. backendIndex is the
// host's stable backend index into SharedState's backend array; pid is
// this process's identifier, written into the slot on admission and
// checked on release so a slot recycled by the host for a different
// process is never mistaken for this backend's own registration.
func NewTracker(shared *SharedState, backendIndex int, pid int64) *Tracker {
	return &Tracker{shared: shared, backendIndex: backendIndex, pid: pid}
}

// SetIdentity records this backend's current (role, database), the
// identity peers are matched against during the admission scan. The
// hook glue calls this whenever the session's role or current database
// changes (e.g. SET ROLE, \c), before the next admission.
func (t *Tracker) SetIdentity(role RoleID, database DatabaseID) {
	t.role = role
	t.database = database
}

// AdmitTransaction is idempotent per backend: a no-op if this backend
// is already tracked as having an open transaction. limit is the
// session's effective max_concurrent_tx; Unset or <=0 (non-positive
// counts as "not configured") means no limit is enforced.
func (t *Tracker) AdmitTransaction(limit int32) error {
	if t.txTracked {
		return nil
	}
	if err := t.admit(CommandNone, limit, true /* transaction */); err != nil {
		return err
	}
	t.txTracked = true
	return nil
}

// AdmitStatement is idempotent per backend until EndStatement clears
// it: a repeated call, even with a different kind, is a no-op and the
// slot keeps the kind of the first admission. The slot's single
// CurrentCmd field holds one statement
// in flight per backend, by design (spec ยง9's "source bug" note, which
// this implementation preserves deliberately).
func (t *Tracker) AdmitStatement(kind CommandKind, limit int32) error {
	if t.stmtTracked {
		return nil
	}
	if err := t.admit(kind, limit, false /* transaction */); err != nil {
		return err
	}
	t.stmtTracked = true
	return nil
}

// admit implements the scan-and-register critical section shared by
// AdmitTransaction and AdmitStatement (spec ยง4.5 steps 1-6). The scan
// and the write happen in the same lock acquisition, which is what
// makes the admission bound hold under concurrent callers: two
// concurrent admissions for the same (role, database, kind) cannot
// both observe count < limit and then both register.
func (t *Tracker) admit(kind CommandKind, limit int32, transaction bool) error {
	if !t.shared.Enabled() {
		return nil
	}

	s := t.shared
	s.mu.Lock()

	if limit == Unset || limit <= 0 {
		t.registerLocked(kind, transaction)
		s.stats.TotalAdmitted++
		s.mu.Unlock()
		return nil
	}

	count := int32(0)
	for i := range s.backends {
		if i == t.backendIndex {
			continue
		}
		b := &s.backends[i]
		if !b.occupied() || b.RoleID != t.role || b.DatabaseID != t.database {
			continue
		}
		if transaction {
			if b.InTransaction {
				count++
			}
			continue
		}
		if b.CurrentCmd == kind {
			count++
		}
	}

	if count >= limit {
		if transaction {
			s.stats.ConcurrentTxViolations++
		} else {
			ptr := s.stats.violationCounter(kind)
			*ptr++
		}
		s.stats.Rejected++
		s.mu.Unlock()

		label := "transaction"
		if !transaction {
			label = kind.String() + " statements"
		}
		return &LimitExceededError{Kind: label, Current: count, Max: limit}
	}

	t.registerLocked(kind, transaction)
	s.stats.TotalAdmitted++
	s.mu.Unlock()
	return nil
}

// registerLocked writes this backend's slot. Callers must hold s.mu.
// PID and identity are written unconditionally on every admission,
// including statement admissions that follow an already-open
// transaction; the slot's other fields are preserved, per spec ยง4.5
// step 5 and ยง9.
func (t *Tracker) registerLocked(kind CommandKind, transaction bool) {
	b := &t.shared.backends[t.backendIndex]
	b.PID = t.pid
	b.RoleID = t.role
	b.DatabaseID = t.database
	if transaction {
		b.InTransaction = true
	} else {
		b.CurrentCmd = kind
	}
}

// EndStatement releases the statement-level tracking for this backend,
// per spec ยง4.5's release algorithm: verify under the lock that PID
// still matches this backend's process id (an abort handler may have
// already cleared the slot), then clear CurrentCmd. PID itself is
// never zeroed here; zeroing happens only on process exit.
func (t *Tracker) EndStatement() {
	if !t.stmtTracked {
		return
	}
	t.stmtTracked = false

	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.backends[t.backendIndex]
	if b.PID != t.pid {
		return
	}
	b.CurrentCmd = CommandNone
}

// EndTransaction releases the transaction-level tracking for this
// backend, symmetric with EndStatement.
func (t *Tracker) EndTransaction() {
	if !t.txTracked {
		return
	}
	t.txTracked = false

	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &s.backends[t.backendIndex]
	if b.PID != t.pid {
		return
	}
	b.InTransaction = false
}
