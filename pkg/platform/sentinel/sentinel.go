package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with context.
//
// These represent factual states about stored resources, not validation
// failures:
//   - ErrNotFound: entity does not exist in the store (or not in this tenant)
//   - ErrAlreadyUsed: a unique value (name, code, email) is taken
//   - ErrConflict: concurrent update or uniqueness race detected
//   - ErrInvalidState: entity in the wrong state for the requested operation
//   - ErrLocked: entity is locked against modification (locked standard version)
//   - ErrUnavailable: backing service temporarily unavailable
//
// For input validation, use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrLocked       = errors.New("locked")
	ErrUnavailable  = errors.New("unavailable")
)
