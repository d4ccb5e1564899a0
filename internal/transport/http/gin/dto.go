package httpgin

import "time"

type CreateHoldRequest struct {
	Owner   string  `json:"owner" binding:"required"`
	SeatIDs []int64 `json:"seat_ids" binding:"required,min=1,dive,required"`
}

type CreateHoldResponse struct {
	HoldID    string    `json:"hold_id"`
	Kind      string    `json:"kind"`
	SeatIDs   []int64   `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReleaseHoldRequest struct {
	Owner  string `json:"owner" binding:"required"`
	SeatID int64  `json:"seat_id" binding:"required"`
}

type CheckSeatsRequest struct {
	SeatIDs []int64 `json:"seat_ids" binding:"required,min=1,dive,required"`
}

type CheckSeatsResponse struct {
	Available   []int64           `json:"available"`
	Unavailable []UnavailableSeat `json:"unavailable"`
}

type UnavailableSeat struct {
	SeatID    int64      `json:"seat_id"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type CreateEventRequest struct {
	Title       string      `json:"title" binding:"required"`
	StartsAt    string      `json:"starts_at" binding:"required"`
	EndsAt      string      `json:"ends_at" binding:"required"`
	SeatingMode string      `json:"seating_mode" binding:"omitempty,oneof=allocated general"`
	Seats       []SeatInput `json:"seats" binding:"omitempty,dive"`
}

type SeatInput struct {
	Row    string `json:"row" binding:"required"`
	Number int    `json:"number" binding:"required,gt=0"`
	PosX   int    `json:"pos_x"`
	PosY   int    `json:"pos_y"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type BatchCreateSeatsRequest struct {
	Seats []SeatInput `json:"seats" binding:"required,min=1,dive"`
}

type CreateTicketTypeRequest struct {
	Name       string  `json:"name" binding:"required"`
	PriceCents int64   `json:"price_cents" binding:"required,gte=0"`
	MaxTickets *int32  `json:"max_tickets"`
	RowFrom    *string `json:"row_from"`
	RowTo      *string `json:"row_to"`
}

type CreateTicketTypeResponse struct {
	TicketTypeID int64 `json:"ticket_type_id"`
}

type SetSeatBlockedRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	BookingID string `json:"booking_id,omitempty"`
	Replayed  bool   `json:"replayed,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BookingResponse struct {
	ID            string            `json:"id"`
	EventID       int64             `json:"event_id"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	Status        string            `json:"status"`
	TotalCents    int64             `json:"total_cents"`
	Currency      string            `json:"currency"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []BookingItemView `json:"items"`
}

type BookingItemView struct {
	ID             string `json:"id"`
	ItemType       string `json:"item_type"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
	TicketCode     string `json:"ticket_code,omitempty"`
	Status         string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
