package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotPending is returned when a status-changing update loses the
// optimistic check against status = 'pending'.
var ErrNotPending = errors.New("request is not pending")
