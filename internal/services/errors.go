package services

import (
	"errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	ErrNotFound      = errors.New("resource not found")
	ErrBadRequest    = errors.New("bad request")
	ErrInternalError = errors.New("internal server error")

	// Session specific errors
	ErrSessionNotFound   = errors.New("exam session not found")
	ErrSessionNotActive  = errors.New("exam session is not active")
	ErrSessionNotStarted = errors.New("exam session has not started")

	// Proctoring specific errors
	ErrProctoringUnavailable = errors.New("proctoring stream unavailable")

	// Report specific errors
	ErrReportNotReady = errors.New("report not available before the session ends")
)

// IsNotFound checks if error represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}
