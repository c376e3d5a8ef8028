package domain

import "errors"

var (
	// ErrSessionNotFound is returned by snapshot stores when no session
	// exists for the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTargetNotFound is returned when a goto target resolves to no line.
	ErrTargetNotFound = errors.New("goto target not found")

	// ErrNotLoaded is returned when an operation requires the script's
	// content to have finished loading.
	ErrNotLoaded = errors.New("script not loaded yet")

	// ErrNotStarted is returned for operations that require start() to have
	// been called on the conversation.
	ErrNotStarted = errors.New("conversation not started")
)
