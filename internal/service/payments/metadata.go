package payments

import (
	"encoding/json"
	"strconv"
	"strings"
)

// TxMetadata is the typed view of the gateway metadata map. It is written
// by the checkout front end under a versioned schema and parsed exactly
// once here; handlers downstream never probe the raw map.
//
// A facet that is missing, empty, or malformed parses to its zero value
// instead of failing the whole transaction.
type TxMetadata struct {
	Schema       string
	EventID      int64
	SeatLabels   []string
	Tickets      []TicketSelection
	Food         []FoodSelection
	CustomerName string
}

type TicketSelection struct {
	TicketTypeID   int64  `json:"ticket_type_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type FoodSelection struct {
	ItemID         int64  `json:"item_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SeatLabel      string `json:"seat_label,omitempty"`
}

const (
	metaKeySchema       = "schema"
	metaKeyEventID      = "event_id"
	metaKeySeats        = "seats"
	metaKeyTickets      = "tickets"
	metaKeyFood         = "food"
	metaKeyCustomerName = "customer_name"
)

func parseTxMetadata(raw map[string]string) TxMetadata {
	var md TxMetadata

	md.Schema = raw[metaKeySchema]
	md.CustomerName = raw[metaKeyCustomerName]

	if v := raw[metaKeyEventID]; v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			md.EventID = id
		}
	}

	// "F8;F9;G1"
	if v := raw[metaKeySeats]; v != "" {
		for _, part := range strings.Split(v, ";") {
			if label := strings.TrimSpace(part); label != "" {
				md.SeatLabels = append(md.SeatLabels, label)
			}
		}
	}

	if v := raw[metaKeyTickets]; v != "" {
		var tickets []TicketSelection
		if err := json.Unmarshal([]byte(v), &tickets); err == nil {
			md.Tickets = tickets
		}
	}

	if v := raw[metaKeyFood]; v != "" {
		var food []FoodSelection
		if err := json.Unmarshal([]byte(v), &food); err == nil {
			md.Food = food
		}
	}

	return md
}

// ticketByType indexes the tickets facet for price/name lookups during
// allocated-seating grouping.
func (m TxMetadata) ticketByType() map[int64]TicketSelection {
	if len(m.Tickets) == 0 {
		return nil
	}

	out := make(map[int64]TicketSelection, len(m.Tickets))
	for _, t := range m.Tickets {
		out[t.TicketTypeID] = t
	}

	return out
}

// foodForSeat returns the food entries attached to one seat label.
func (m TxMetadata) foodForSeat(label string) []FoodSelection {
	var out []FoodSelection
	for _, f := range m.Food {
		if f.SeatLabel == label {
			out = append(out, f)
		}
	}

	return out
}
