package store

import "errors"

// ErrNotFound is returned by any store method when the requested record
// does not exist, regardless of which backend is configured.
var ErrNotFound = errors.New("store: record not found")
