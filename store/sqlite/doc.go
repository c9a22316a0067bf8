// Package sqlite provides a SQLite-backed checkpoint store (mattn/go-sqlite3, cgo).
// The table is created when the store is opened.
package sqlite
