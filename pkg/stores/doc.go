// Package stores persists committed environment snapshots in SQLite.
//
// A snapshot records which package versions a root requirement resolved to
// at launch time. Snapshots are written only on explicit commit; resolution
// and drift checks never touch the database.
package stores
