// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import (
	"context"
	"strings"

	"github.com/cockroachdb/qos-governor/internal/log"
)

// RoleID and DatabaseID mirror the host's stable OIDs for roles and
// databases. NoRole/NoDatabase is the host's "none" sentinel used by
// the setting catalog to mean "this row applies to every role" or
// "every database" respectively.
type (
	RoleID     int64
	DatabaseID int64
)

const (
	NoRole     RoleID     = 0
	NoDatabase DatabaseID = 0
)

// CatalogReader is the seam onto the host's per-role/per-database
// setting catalog (spec ยง4.2, ยง6). The host stores rows keyed by
// (setdatabase, setrole) with a text[] of "name=value" entries; this
// interface exposes the three filtered queries the effective-limit
// cache needs, without this module knowing how the host's catalog scan
// or its read-lock tranche work.
type CatalogReader interface {
	// LimitsForRole returns the folded Limits of the role-only row
	// (setdatabase = none, setrole = roleID).
	LimitsForRole(ctx context.Context, roleID RoleID) (Limits, error)
	// LimitsForDatabase returns the folded Limits of the
	// database-only row (setdatabase = dbID, setrole = none).
	LimitsForDatabase(ctx context.Context, dbID DatabaseID) (Limits, error)
	// LimitsForRoleInDatabase returns the folded Limits of the
	// role-in-database row (setdatabase = dbID, setrole = roleID).
	LimitsForRoleInDatabase(ctx context.Context, roleID RoleID, dbID DatabaseID) (Limits, error)
}

// ParseConfigEntries folds a single catalog row's text[] of
// "name=value" entries into a fresh Limits, per spec ยง4.2: trim
// whitespace around both halves, ignore names that don't start with
// "qos.", and apply the rest with ApplyValue(strict=false). A
// malformed "qos.*" entry is dropped and logged at debug level rather
// than aborting the whole row, mirroring the source's tolerant catalog
// scan in hooks_cache.c.
func ParseConfigEntries(ctx context.Context, entries []string) Limits {
	limits := UnsetLimits()
	for _, raw := range entries {
		name, value, err := ParseEntry(raw)
		if err != nil {
			log.VEventf(ctx, 2, "dropping malformed configuration entry %q: %v", raw, err)
			continue
		}
		if !strings.HasPrefix(name, "qos.") {
			continue
		}
		if err := ApplyValue(&limits, name, value, false /* strict */); err != nil {
			log.VEventf(ctx, 2, "dropping malformed entry %q=%q: %v", name, value, err)
			continue
		}
	}
	return limits
}
