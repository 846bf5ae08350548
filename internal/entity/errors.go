package entity

import "errors"

// Domain errors
var (
	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionCancelled     = errors.New("session is cancelled")
	ErrSessionCompleted     = errors.New("session is already completed")
	ErrInvalidSessionStatus = errors.New("invalid session status")
	ErrUnknownWizard        = errors.New("unknown wizard")
	ErrUnknownAction        = errors.New("unknown step action")
	ErrStepNotActive        = errors.New("step is not active")
	ErrNoResult             = errors.New("session result not available")

	// Validation errors, surfaced inline and never sent to the server
	ErrAnswerTooShort       = errors.New("answer is too short")
	ErrNotYesNo             = errors.New("expected a yes or no answer")
	ErrAnswerEchoesQuestion = errors.New("answer repeats the question text")
	ErrMissingField         = errors.New("required field is missing")
	ErrInvalidFormat        = errors.New("invalid format")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrInvalidExtension     = errors.New("invalid file extension")
	ErrFileTooLarge         = errors.New("file is too large")

	// Local state errors
	ErrStateNotFound = errors.New("state not found")
)
