package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist (or was soft
// deleted). Callers distinguish it from transport/database failures with
// errors.Is.
var ErrNotFound = errors.New("record not found")
