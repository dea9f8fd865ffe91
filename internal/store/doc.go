// Package store persists the event and automation-rule collections.
//
// It currently supports:
//   - JSON snapshot files (default, dependency-free)
//   - SQLite (build with -tags sqlite)
package store
