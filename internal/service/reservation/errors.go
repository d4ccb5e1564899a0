package reservation

import "errors"

var (
	ErrSeatsUnavailable = errors.New("some seats are unavailable")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrNoSeatsSelected  = errors.New("no seats selected")
	ErrRateLimited      = errors.New("rate limited")
)
