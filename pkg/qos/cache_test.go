// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"context"
	"testing"
)

// fakeCatalog is a minimal CatalogReader for cache tests, independent
// of the internal/harness package so pkg/qos's own tests have no
// import-cycle-adjacent dependency on it.
type fakeCatalog struct {
	roleLimits map[RoleID]Limits
	dbLimits   map[DatabaseID]Limits
	reads      int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{roleLimits: map[RoleID]Limits{}, dbLimits: map[DatabaseID]Limits{}}
}

func (f *fakeCatalog) LimitsForRole(ctx context.Context, role RoleID) (Limits, error) {
	f.reads++
	if l, ok := f.roleLimits[role]; ok {
		return l, nil
	}
	return UnsetLimits(), nil
}

func (f *fakeCatalog) LimitsForDatabase(ctx context.Context, db DatabaseID) (Limits, error) {
	f.reads++
	if l, ok := f.dbLimits[db]; ok {
		return l, nil
	}
	return UnsetLimits(), nil
}

func (f *fakeCatalog) LimitsForRoleInDatabase(ctx context.Context, role RoleID, db DatabaseID) (Limits, error) {
	return UnsetLimits(), nil
}

func TestSessionCacheFoldsRoleAndDatabase(t *testing.T) {
	shared := NewSharedState(1)
	catalog := newFakeCatalog()

	roleLimits := UnsetLimits()
	roleLimits.MaxConcurrentSelect = 10
	catalog.roleLimits[RoleID(1)] = roleLimits

	dbLimits := UnsetLimits()
	dbLimits.MaxConcurrentSelect = 3
	catalog.dbLimits[DatabaseID(1)] = dbLimits

	cache := NewSessionCache(shared, catalog)
	got, err := cache.GetEffectiveLimits(context.Background(), RoleID(1), DatabaseID(1))
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxConcurrentSelect != 3 {
		t.Errorf("MaxConcurrentSelect = %d, want 3 (most restrictive)", got.MaxConcurrentSelect)
	}
}

func TestSessionCacheHitAvoidsCatalogRead(t *testing.T) {
	shared := NewSharedState(1)
	catalog := newFakeCatalog()
	cache := NewSessionCache(shared, catalog)

	ctx := context.Background()
	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	readsAfterFirst := catalog.reads

	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	if catalog.reads != readsAfterFirst {
		t.Errorf("second call with the same identity and epoch re-read the catalog: %d -> %d", readsAfterFirst, catalog.reads)
	}
}

func TestSessionCacheMissOnIdentityChange(t *testing.T) {
	shared := NewSharedState(1)
	catalog := newFakeCatalog()
	cache := NewSessionCache(shared, catalog)

	ctx := context.Background()
	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	readsAfterFirst := catalog.reads

	if _, err := cache.GetEffectiveLimits(ctx, RoleID(2), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	if catalog.reads == readsAfterFirst {
		t.Error("changing role must force a catalog re-read")
	}
}

func TestSessionCacheEpochBumpInvalidates(t *testing.T) {
	shared := NewSharedState(1)
	catalog := newFakeCatalog()
	cache := NewSessionCache(shared, catalog)

	ctx := context.Background()
	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	readsAfterFirst := catalog.reads

	shared.BumpSettingsEpoch()

	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	if catalog.reads == readsAfterFirst {
		t.Error("a settings_epoch bump must force a catalog re-read even with the same identity")
	}
}

func TestSessionCacheExplicitInvalidate(t *testing.T) {
	shared := NewSharedState(1)
	catalog := newFakeCatalog()
	cache := NewSessionCache(shared, catalog)

	ctx := context.Background()
	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	readsAfterFirst := catalog.reads

	cache.Invalidate()

	if _, err := cache.GetEffectiveLimits(ctx, RoleID(1), DatabaseID(1)); err != nil {
		t.Fatal(err)
	}
	if catalog.reads == readsAfterFirst {
		t.Error("Invalidate must force a catalog re-read on the next call")
	}
}
