package domain

import "errors"

var (
	// ErrMediaAcquisition means the camera or microphone could not be opened.
	ErrMediaAcquisition = errors.New("media acquisition failed")
	// ErrNegotiation means a description or candidate was malformed or rejected.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrOutOfOrderSignal means a signal arrived in a state that does not accept it.
	ErrOutOfOrderSignal = errors.New("out of order signal")
	// ErrScreenCapture means a screen source could not be acquired.
	ErrScreenCapture = errors.New("screen capture failed")

	ErrNotActive           = errors.New("call is not active")
	ErrSessionInProgress   = errors.New("a call session is already in progress")
	ErrFormFrozen          = errors.New("form is frozen after submit")
	ErrUnknownField        = errors.New("unknown form field")
	ErrUnknownEvent        = errors.New("unknown event")
	ErrInvalidPayload      = errors.New("invalid event payload")
	ErrRoleNotAllowed      = errors.New("operation not allowed for this role")
	ErrNoPendingSubmission = errors.New("no pending form submission")
)
