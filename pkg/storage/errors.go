package storage

import "errors"

// Sentinel errors classified by pkg/codes at the RPC boundary.
var (
	ErrInvalidArgument   = errors.New("storage: invalid argument")
	ErrCorrupted         = errors.New("storage: corrupted data")
	ErrNotFound          = errors.New("storage: not found")
	ErrClosed            = errors.New("storage: segment closed")
	ErrResourceExhausted = errors.New("storage: segment full")
	ErrOffsetOutOfRange  = errors.New("storage: offset out of range")
	ErrChainBroken       = errors.New("storage: segment chain broken")
)
