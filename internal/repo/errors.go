package repo

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when no row matched the given key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when the users.username unique constraint rejects an insert.
	ErrDuplicateUsername = errors.New("username already exists")
)

// pqUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

// ValidationError reports missing or malformed input, keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
