package backend

import "errors"

// ErrEmptyRoster is returned by a selection policy when no backends are
// configured at all.
var ErrEmptyRoster = errors.New("backend: roster is empty")
