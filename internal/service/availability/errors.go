package availability

import "errors"

var ErrTicketTypeNotFound = errors.New("ticket type not found")
