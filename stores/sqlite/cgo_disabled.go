//go:build !cgo

package sqlite

// CGOEnabled is false in builds without cgo, where go-sqlite3 cannot open a
// database. Callers pick another store instead.
const CGOEnabled = false
