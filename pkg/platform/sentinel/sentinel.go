package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, sinks and handlers return
// these (optionally wrapped) so callers can branch with errors.Is.
//
// These represent factual states, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrInvalidState: object in wrong state for requested operation
// - ErrUnavailable: sink or resource temporarily unavailable
// - ErrBufferFull: async buffer cannot accept more events
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrBufferFull   = errors.New("audit buffer full")
)
