package model

import "errors"

var (
	ErrNotFound          = errors.New("event not found")
	ErrInvalidInterval   = errors.New("event end must be after start")
	ErrUnknownRecurrence = errors.New("unknown recurrence rule")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidTimeZone   = errors.New("invalid time zone")
)
