package types

import "errors"

// Store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateName = errors.New("name already in use")
	ErrInvalidName   = errors.New("invalid name")
	ErrStoreClosed   = errors.New("store is closed")
	ErrLookupFailed  = errors.New("lookup failed")
)

// Configuration errors.
var (
	ErrStorePathEmpty   = errors.New("store path must not be empty")
	ErrOrderingUnknown  = errors.New("unknown ordering strategy")
	ErrLogLevelUnknown  = errors.New("unknown log level")
	ErrLogFormatUnknown = errors.New("unknown log format")
)
