// Package apperr declares the sentinel errors shared across Cueflow layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")

	// ErrValidation marks an edit that violates a timeline invariant.
	// Nothing is applied; the message names the failed invariant.
	ErrValidation = errors.New("validation failed")

	// ErrOutOfRange marks a transport seek outside the timeline bounds
	// when the seek policy is "error" rather than "clamp".
	ErrOutOfRange = errors.New("out of range")

	// ErrAdapterTimeout and ErrAdapterSend mark per-message output
	// failures. They are logged and surfaced, never fatal.
	ErrAdapterTimeout = errors.New("adapter timeout")
	ErrAdapterSend    = errors.New("adapter send failed")

	// ErrConfigLoad marks a malformed DMX filter configuration. DMX
	// output stays disabled until the config is corrected; MIDI and OSC
	// playback continue.
	ErrConfigLoad = errors.New("filter config load failed")
)
