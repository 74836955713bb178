package domain

import "errors"

// Sentinel errors shared across packages. Rejections that carry a
// user-actionable explanation (affordability, screening, queue overflow)
// travel as reason strings on their decision structs instead.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNoPrice       = errors.New("no usable price")
)
