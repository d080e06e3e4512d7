// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"context"

	"github.com/cockroachdb/qos-governor/internal/syncutil"
)

// SessionCache is the per-session effective-limit cache described in
// spec ยง3 and ยง4.4: keyed by (current role, current database,
// last-observed epoch), refreshed lazily on epoch change or host
// invalidation, folding role-scoped and database-scoped limits by the
// most-restrictive rule.
type SessionCache struct {
	mu syncutil.Mutex

	shared  *SharedState
	catalog CatalogReader

	limits         Limits
	cachedRole     RoleID
	cachedDatabase DatabaseID
	lastSeenEpoch  uint32
	cachedValid    bool
}

// NewSessionCache constructs the per-session cache for one backend.
// The cache is private per spec's Design Notes ยง9: no two sessions
// share one SessionCache, and it contains only values, never pointers
// into shared state.
func NewSessionCache(shared *SharedState, catalog CatalogReader) *SessionCache {
	return &SessionCache{shared: shared, catalog: catalog}
}

// Invalidate forces the next GetEffectiveLimits call to re-read the
// catalog, regardless of epoch or identity. It is the target of the
// two host invalidation entry points (role-catalog changed,
// database-catalog changed) and of the settings-catalog relcache
// event, per spec ยง4.4.
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedValid = false
}

// GetEffectiveLimits returns this session's effective Limits for the
// given (role, database), refreshing the cache if needed. This must
// only be called from a context where catalog access is legal (a
// statement boundary, per spec ยง4.4 and the Design Notes' "Catalog I/O
// legality" note) since a cache miss performs catalog reads.
func (c *SessionCache) GetEffectiveLimits(
	ctx context.Context, role RoleID, database DatabaseID,
) (Limits, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Step 2: an epoch bump invalidates the cache regardless of
	// identity, and the session adopts the new epoch immediately so a
	// second bump before the refresh completes doesn't cause a second
	// redundant refresh.
	epoch := c.shared.SettingsEpoch()
	if epoch != c.lastSeenEpoch {
		c.cachedValid = false
		c.lastSeenEpoch = epoch
	}

	// Step 3: a valid cache for the same identity short-circuits.
	if c.cachedValid && c.cachedRole == role && c.cachedDatabase == database {
		return c.limits, nil
	}

	// Step 4: refresh from the catalog and fold most-restrictive.
	roleLimits, err := c.catalog.LimitsForRole(ctx, role)
	if err != nil {
		return Limits{}, err
	}
	dbLimits, err := c.catalog.LimitsForDatabase(ctx, database)
	if err != nil {
		return Limits{}, err
	}

	c.limits = MostRestrictive(roleLimits, dbLimits)
	c.cachedRole = role
	c.cachedDatabase = database
	c.cachedValid = true

	return c.limits, nil
}
