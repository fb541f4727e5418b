// Package common defines shared constants and sentinel errors used across
// the signaling server, the peer client and the transfer protocol. Callers
// should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	//
	// ErrorNotFound covers both a missing session and a failed precondition,
	// so a caller cannot tell which codes exist.
	ErrorNotFound    = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrDuplicateCode = errors.New("duplicate code")

	// Service-level errors.
	ErrorInternal          = errors.New("internal error")
	ErrGenerationExhausted = errors.New("code generation exhausted")
	ErrorIncorrectMetadata = errors.New("incorrect metadata")
	ErrInvalidArgument     = errors.New("invalid argument")

	// Transfer errors.
	ErrProtocol  = errors.New("protocol error")
	ErrTransport = errors.New("transport error")
)
