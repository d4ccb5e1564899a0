package catalog

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrSeatNotFound  = errors.New("seat not found")
	ErrSeatIsBooked  = errors.New("seat is booked")
	ErrEventNotFound = errors.New("event not found")
)
