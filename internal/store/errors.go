package store

import "errors"

// ErrNotFound is returned by Get/Update methods when no row matches the id.
var ErrNotFound = errors.New("store: not found")
