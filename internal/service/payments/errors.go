package payments

import "errors"

var (
	ErrPaymentNotConfirmed = errors.New("payment not confirmed by gateway")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrValidation          = errors.New("transaction resolves to no sellable units")
	ErrEventNotFound       = errors.New("event not found")
)
