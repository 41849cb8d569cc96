package store

import "errors"

// ErrNotFound is returned by store lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an optimistic/atomic update affected zero rows
// because a concurrent caller won the race. Callers retry or fall through to
// the next allocation step; it is never surfaced to an HTTP client directly.
var ErrConflict = errors.New("conflict")
