package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatAvailable   SeatStatus = "available"
	SeatReserved    SeatStatus = "reserved"
	SeatBooked      SeatStatus = "booked"
	SeatUnavailable SeatStatus = "unavailable"
)

type SeatingMode string

const (
	SeatingAllocated SeatingMode = "allocated"
	SeatingGeneral   SeatingMode = "general"
)

type Event struct {
	ID          int64
	Title       string
	Starts      time.Time
	Ends        time.Time
	SeatingMode SeatingMode
}

type Seat struct {
	ID            int64
	EventID       int64
	Row           string
	Number        int
	PosX          int
	PosY          int
	Status        SeatStatus
	TicketTypeID  *int64
	HoldOwner     *string
	HoldExpiresAt *time.Time
}

// Label is the human seat identifier used in gateway metadata and on
// tickets, e.g. "F8" for row F, number 8.
func (s Seat) Label() string {
	return s.Row + strconv.Itoa(s.Number)
}

type TicketType struct {
	ID         int64
	EventID    int64
	Name       string
	PriceCents int64
	// MaxTickets bounds the sum of quantities across active ticket line
	// items for this type. Nil means unlimited.
	MaxTickets *int32
	RowFrom    *string
	RowTo      *string
}

type HoldKind string

const (
	HoldSingleSeat HoldKind = "single_seat"
	HoldTableGroup HoldKind = "table_group"
)

// Hold is a time-bounded, non-final claim on one or more seats. Seats
// mirror the hold in their own hold fields; the hold row is the single
// source of truth for the claim itself.
type Hold struct {
	ID         uuid.UUID
	EventID    int64
	Kind       HoldKind
	SeatIDs    []int64
	Owner      string
	ReservedAt time.Time
	ExpiresAt  time.Time
	Confirmed  bool
}

type BookingStatus string

const (
	BookingProcessing BookingStatus = "processing"
	BookingActive     BookingStatus = "active"
	BookingFailed     BookingStatus = "failed"
	BookingRefunded   BookingStatus = "refunded"
)

type Booking struct {
	ID            uuid.UUID
	EventID       int64
	CustomerName  string
	CustomerEmail string
	// PaymentKey is the gateway transaction id. Unique across all bookings;
	// replayed notifications resolve to the same booking through it.
	PaymentKey string
	Status     BookingStatus
	TotalCents int64
	Currency   string
	Metadata   []byte // jsonb raw
	// Fulfillment is the persisted per-unit execution summary, written when
	// the pipeline finishes. Nil while the booking is still processing.
	Fulfillment []byte
	CreatedAt   time.Time
}

type LineItemType string

const (
	ItemTicket      LineItemType = "ticket"
	ItemFood        LineItemType = "food"
	ItemMerchandise LineItemType = "merchandise"
)

type LineItemStatus string

const (
	LineItemActive LineItemStatus = "active"
	LineItemVoid   LineItemStatus = "void"
)

type BookingLineItem struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	ItemType       LineItemType
	RefID          int64
	Name           string
	Quantity       int
	UnitPriceCents int64
	TotalCents     int64
	SeatDetails    []byte // jsonb raw: seat labels covered by this item
	ItemDetails    []byte // jsonb raw: embedded sub-items, e.g. food per seat
	TicketCode     string // empty until rendering succeeds
	Status         LineItemStatus
}

type BookingWithItems struct {
	Booking Booking
	Items   []BookingLineItem
}

// TypeAvailability reports sold and remaining capacity for a ticket type.
// Unlimited is a distinct state, not a large count; callers must branch
// on it rather than compare Available numerically.
type TypeAvailability struct {
	TicketTypeID int64
	Sold         int
	Unlimited    bool
	Available    int
}

type UnavailableReason string

const (
	ReasonNotFound UnavailableReason = "not_found"
	ReasonReserved UnavailableReason = "reserved"
	ReasonBooked   UnavailableReason = "booked"
	ReasonBlocked  UnavailableReason = "blocked"
)

type UnavailableSeat struct {
	SeatID    int64
	Reason    UnavailableReason
	ExpiresAt *time.Time
}

type SeatClassification struct {
	Available   []int64
	Unavailable []UnavailableSeat
}

// FulfillmentUnit tracks rendering and delivery for one sold unit: one
// seat in allocated mode, or one quantity-unit of a line item in general
// admission.
type FulfillmentUnit struct {
	Label     string
	SeatLabel string
	Rendered  bool
	Delivered bool
	Err       string
}

type PipelineResult struct {
	BookingID   uuid.UUID
	Replayed    bool
	Units       []FulfillmentUnit
	RenderedOK  int
	DeliveredOK int
	Failed      int
}

type EventCounts struct {
	Available int64
	Reserved  int64
	Booked    int64
	Blocked   int64
	Total     int64
}
