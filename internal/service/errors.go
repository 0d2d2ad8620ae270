package service

import "errors"

var (
	ErrSessionNotFound = errors.New("booking session not found")
	ErrInvalidService  = errors.New("invalid service selection")
	ErrSlotUnavailable = errors.New("time slot is not available")
	ErrSubmitLocked    = errors.New("booking submission is already in progress")
	ErrRateLimited     = errors.New("too many requests")
	ErrInvalidRequest  = errors.New("invalid request")
)
