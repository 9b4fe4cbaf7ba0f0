package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The docstore and other
// infrastructure layers return these (optionally wrapped) so services can
// translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: document does not exist in the store
// - ErrConflict: a write collided with an existing document or reservation
// - ErrInvalidState: document in wrong state for the requested operation
// - ErrUnavailable: store or broker temporarily unreachable
//
// For input validation, use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
