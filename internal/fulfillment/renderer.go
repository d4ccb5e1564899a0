package fulfillment

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viktorkud/seatwise/internal/service/payments"
)

// TicketRenderer produces the ticket artifact for one sold unit: a
// deterministic ticket code, a QR payload embedding the booking facts,
// and the artifact location the mailer attaches.
//
// Codes are derived from booking id + unit, so re-rendering the same
// unit yields the same code.
type TicketRenderer struct {
	baseURL string
}

func NewTicketRenderer(baseURL string) *TicketRenderer {
	return &TicketRenderer{baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *TicketRenderer) Render(ctx context.Context, req payments.RenderRequest) (*payments.RenderResult, error) {
	if req.Unit == "" {
		return nil, fmt.Errorf("unit identifier is required")
	}

	code := ticketCode(req.BookingID.String(), req.Unit)

	qr, err := json.Marshal(map[string]any{
		"code":        code,
		"booking_id":  req.BookingID.String(),
		"unit":        req.Unit,
		"ticket_type": req.TicketType,
		"label":       req.Label,
		"attendee":    req.Attendee,
		"food":        req.Food,
	})
	if err != nil {
		return nil, fmt.Errorf("encode qr payload: %w", err)
	}

	return &payments.RenderResult{
		Code:             code,
		ArtifactLocation: fmt.Sprintf("%s/tickets/%s", r.baseURL, code),
		QRPayload:        string(qr),
	}, nil
}

func ticketCode(bookingID, unit string) string {
	sum := sha256.Sum256([]byte(bookingID + "|" + unit))
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:10])

	return "TKT-" + enc
}
