package directory

import "errors"

// ErrNotFound is returned when a referenced patient or doctor does not exist.
var ErrNotFound = errors.New("directory: not found")
