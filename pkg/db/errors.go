package db

import "strings"

// IsUniqueViolation reports whether the provided error references a unique
// violation. When constraintName is given, the helper looks for the
// constraint text in the error message; this works for both the Postgres
// driver and the SQLite driver used by the terminal.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
