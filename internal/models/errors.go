package models

import "errors"

// ErrSessionNotFound is returned when a session has no mounted view state,
// either because it was never mounted, was unmounted, or expired
var ErrSessionNotFound = errors.New("session not found")
