package chain

import "errors"

// Rejections raised by contract code. Every rejected call reverts its frame.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStateConflict   = errors.New("state conflict")

	// ErrDeferredExecution wraps the failure of a scheduled call. It is only
	// ever reported on the deferred receipt, never to the scheduling caller.
	ErrDeferredExecution = errors.New("deferred execution failed")
)

// Host errors.
var (
	ErrNoCode          = errors.New("no code at address")
	ErrUnknownCode     = errors.New("unknown code")
	ErrUnknownSelector = errors.New("unknown selector")
	ErrCallDepth       = errors.New("max call depth exceeded")
	ErrContractExists  = errors.New("contract already exists")
	ErrShortInput      = errors.New("input shorter than selector")
	ErrBadNonce        = errors.New("nonce mismatch")
	ErrNotDeployable   = errors.New("code cannot be deployed")
)
