// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package harness provides the fakes the governor's scenario tests
// drive instead of a live host: an in-memory setting catalog, fake
// plan nodes, and a deterministic CPU topology, grounded on the
// teacher's testutils package style of providing fakes usable without
// a running server.
package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/qos-governor/pkg/qos"
)

// key identifies one row of the fake catalog: (database, role), where
// qos.NoDatabase/qos.NoRole stand in for the host's "none" sentinel
// exactly as they do in the real catalog.
type key struct {
	database qos.DatabaseID
	role     qos.RoleID
}

// Catalog is an in-memory stand-in for the host's per-role/per-database
// setting catalog (spec ยง4.2, ยง6). SetEntries stores the raw
// "name=value" text[] a real ALTER ROLE/DATABASE ... SET would persist;
// the three LimitsFor* queries fold them the same way the real catalog
// reader does.
type Catalog struct {
	mu   sync.Mutex
	rows map[key][]string
}

// NewCatalog constructs an empty fake catalog.
func NewCatalog() *Catalog {
	return &Catalog{rows: make(map[key][]string)}
}

// SetRoleEntries replaces the raw entries for ALTER ROLE role SET ...
// (setdatabase = none).
func (c *Catalog) SetRoleEntries(role qos.RoleID, entries []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[key{database: qos.NoDatabase, role: role}] = entries
}

// SetDatabaseEntries replaces the raw entries for ALTER DATABASE db SET
// ... (setrole = none).
func (c *Catalog) SetDatabaseEntries(database qos.DatabaseID, entries []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[key{database: database, role: qos.NoRole}] = entries
}

// SetRoleInDatabaseEntries replaces the raw entries for ALTER ROLE role
// IN DATABASE db SET ....
func (c *Catalog) SetRoleInDatabaseEntries(role qos.RoleID, database qos.DatabaseID, entries []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[key{database: database, role: role}] = entries
}

// AppendRoleEntry appends a raw "name=value" entry to the role-only
// row, the way ALTER ROLE ... SET qos.x = y would add a single entry.
func (c *Catalog) AppendRoleEntry(role qos.RoleID, entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{database: qos.NoDatabase, role: role}
	c.rows[k] = append(c.rows[k], entry)
}

// AppendDatabaseEntry is AppendRoleEntry's database-scoped counterpart.
func (c *Catalog) AppendDatabaseEntry(database qos.DatabaseID, entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{database: database, role: qos.NoRole}
	c.rows[k] = append(c.rows[k], entry)
}

func (c *Catalog) LimitsForRole(ctx context.Context, role qos.RoleID) (qos.Limits, error) {
	return c.fold(ctx, key{database: qos.NoDatabase, role: role}), nil
}

func (c *Catalog) LimitsForDatabase(ctx context.Context, database qos.DatabaseID) (qos.Limits, error) {
	return c.fold(ctx, key{database: database, role: qos.NoRole}), nil
}

func (c *Catalog) LimitsForRoleInDatabase(
	ctx context.Context, role qos.RoleID, database qos.DatabaseID,
) (qos.Limits, error) {
	return c.fold(ctx, key{database: database, role: role}), nil
}

func (c *Catalog) fold(ctx context.Context, k key) qos.Limits {
	c.mu.Lock()
	entries := append([]string(nil), c.rows[k]...)
	c.mu.Unlock()
	return qos.ParseConfigEntries(ctx, entries)
}

// Entry formats a "name=value" entry, for tests that build entries
// programmatically instead of as literal strings.
func Entry(name qos.Name, value string) string {
	return fmt.Sprintf("%s=%s", name, value)
}
