// Package store provides persistence for organizations, users, and
// memberships.
//
// The Store interface is implemented by SQLiteStore (modernc.org/sqlite,
// pure Go) for production and MockStore (in-memory) for tests. Membership
// rows are the tenant-isolation source of truth: the auth pipeline looks
// them up fresh on every request.
package store
