package chain

import "errors"

var (
	// ErrNoSigner is returned when a transaction is requested without a configured key.
	ErrNoSigner = errors.New("chain: no signer configured")
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("chain: transaction reverted")
	// ErrUnknownEvent is returned for logs that do not match a known event.
	ErrUnknownEvent = errors.New("chain: unknown event")
	// ErrBadResult is returned when a call result does not have the expected shape.
	ErrBadResult = errors.New("chain: unexpected call result")
	// ErrBadArgument is returned when a call argument does not fit its ABI type.
	ErrBadArgument = errors.New("chain: argument out of range")
	// ErrBadConfig is returned by Dial for incomplete configuration.
	ErrBadConfig = errors.New("chain: invalid config")
)
