// Package devtools speaks the browser automation protocol: JSON command
// frames over a persistent connection to a remote debugging target.
package devtools

import "errors"

// Failure sentinels. Transport-level failures never panic; the orchestrator
// absorbs them and falls through to the next acquisition tier.
var (
	// ErrNoTarget means discovery found no addressable execution context.
	ErrNoTarget = errors.New("devtools: no addressable target")

	// ErrTimeout means no response frame with the awaited id arrived in time.
	ErrTimeout = errors.New("devtools: response timeout")

	// ErrProtocol covers malformed frames and remote protocol errors.
	ErrProtocol = errors.New("devtools: protocol error")

	// ErrScriptException means the remote evaluation raised inside the page,
	// as opposed to the transport failing.
	ErrScriptException = errors.New("devtools: script exception")

	// ErrEmptyResult means the evaluated script resolved to null.
	ErrEmptyResult = errors.New("devtools: script returned null")
)
