package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrInvalidPayload  = fmt.Errorf("invalid event payload")
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrPersistence     = fmt.Errorf("persistence failed")
	ErrDelivery        = fmt.Errorf("session delivery failed")
	ErrDispatch        = fmt.Errorf("push dispatch failed")
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrSessionClosed   = fmt.Errorf("session closed")
)
