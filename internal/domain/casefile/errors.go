package casefile

import "errors"

var (
	ErrCaseNotFound        = errors.New("case not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrDuplicateCaseNumber = errors.New("case number already in use")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrClosingNoteRequired = errors.New("closing a case requires a closing note")
	ErrInvalidInput        = errors.New("invalid input")
)
