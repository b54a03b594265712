package storage

import "github.com/rhuss/tokengate/pkg/auth"

// ErrNotFound is returned when no account matches a subject. It is the
// gate's ErrAccountNotFound, so adapters need no translation.
var ErrNotFound = auth.ErrAccountNotFound
