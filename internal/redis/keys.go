package redisx

import "fmt"

const ns = "seatwise:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventAvailability(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:availability", ns, eventID)
}

func KeyEventSeatMap(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:seatmap", ns, eventID)
}

func KeyTypeAvailability(ticketTypeID int64) string {
	return fmt.Sprintf("%s:tickettype:%d:availability", ns, ticketTypeID)
}

func KeyIdemHold(eventID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:holds:%d:%s", ns, eventID, idemKey)
}

func KeyIdemPayment(paymentKey string) string {
	return fmt.Sprintf("%s:idem:payments:%s", ns, paymentKey)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}
