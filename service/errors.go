package service

import "errors"

var (
	// ErrNotFound reports an unknown upload or output identifier.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition reports a request that cannot be accepted in the current state.
	ErrPrecondition = errors.New("precondition failed")
)

const (
	errSomeChunksFailed = "some chunks failed to upload"
	errInterrupted      = "interrupted by restart"
)
