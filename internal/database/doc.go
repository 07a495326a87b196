// Package database provides SQLite-based run history for torrecon.
//
// Every run report is stored twice: as the complete JSON document, so that
// a run can be shown exactly as it was written, and as one row per
// execution record, so that questions such as "which exit identities did
// this target see" can be answered with plain SQL.
//
// The driver is modernc.org/sqlite, which is CGO-free. The database lives
// in a single file in the XDG data directory.
package database
