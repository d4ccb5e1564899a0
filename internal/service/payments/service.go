package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viktorkud/seatwise/internal/domain"
	"github.com/viktorkud/seatwise/internal/repository"
)

// Store is the durable side of the pipeline. The materialize call runs
// as one transaction; the unique payment-key constraint behind it is the
// race-free replay guard.
type Store interface {
	GetBookingByPaymentKey(ctx context.Context, key string) (*domain.BookingWithItems, error)
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	GetTicketType(ctx context.Context, id int64) (*domain.TicketType, error)
	SeatsByLabels(ctx context.Context, eventID int64, labels []string) ([]domain.Seat, error)
	MaterializeBooking(ctx context.Context, b *domain.Booking, items []domain.BookingLineItem, seatIDs []int64) (skipped []int64, err error)
	SetTicketCode(ctx context.Context, itemID uuid.UUID, code string) error
	Finish(ctx context.Context, id uuid.UUID, status domain.BookingStatus, fulfillmentJSON []byte) error
}

// Transaction is the gateway's authoritative record for a payment key.
type Transaction struct {
	ID            string
	Succeeded     bool
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

type Gateway interface {
	GetTransaction(ctx context.Context, paymentKey string) (*Transaction, error)
}

type RenderRequest struct {
	BookingID  uuid.UUID
	Unit       string
	TicketType string
	Label      string
	Attendee   string
	Food       []FoodSelection
}

type RenderResult struct {
	Code             string
	ArtifactLocation string
	QRPayload        string
}

type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}

type Mailer interface {
	Deliver(ctx context.Context, recipient string, artifact string, meta map[string]string) error
}

// AvailabilityChecker reports whether a ticket type can still cover a
// quantity. A confirmed payment is recorded even when over capacity;
// the check only makes the oversell observable.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, ticketTypeID int64, quantity int) (bool, error)
}

type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type Service struct {
	store    Store
	gateway  Gateway
	renderer Renderer
	mailer   Mailer
	checker  AvailabilityChecker
	cache    Invalidator
	pubsub   Publisher
	logger   *slog.Logger
}

func New(
	store Store,
	gateway Gateway,
	renderer Renderer,
	mailer Mailer,
	checker AvailabilityChecker,
	cache Invalidator,
	pubsub Publisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:    store,
		gateway:  gateway,
		renderer: renderer,
		mailer:   mailer,
		checker:  checker,
		cache:    cache,
		pubsub:   pubsub,
		logger:   logger,
	}
}

// unit is one sellable unit to fulfill: a seat in allocated seating, or
// one quantity-unit of a line item in general admission.
type unit struct {
	itemIdx    int
	label      string
	seatLabel  string
	ticketType string
	food       []FoodSelection
}

// fulfillmentSummary is what Finish persists and a replay returns.
type fulfillmentSummary struct {
	Units       []fulfillmentUnit `json:"units"`
	RenderedOK  int               `json:"rendered_ok"`
	DeliveredOK int               `json:"delivered_ok"`
	Failed      int               `json:"failed"`
}

type fulfillmentUnit struct {
	Label     string `json:"label"`
	SeatLabel string `json:"seat_label,omitempty"`
	Rendered  bool   `json:"rendered"`
	Delivered bool   `json:"delivered"`
	Err       string `json:"err,omitempty"`
}

// Process materializes a confirmed payment into a booking.
//
// The idempotency check runs before any other side effect: a replayed
// payment key returns the recorded result verbatim with no new writes.
// Per-unit fulfillment failures are recorded, never fatal to the sale.
// Once the booking row exists the pipeline no longer honors the caller's
// cancellation; it runs to a final Active or Failed status.
//
// Returns:
//   - *domain.PipelineResult: the outcome, Replayed=true on a replay.
//   - error: payments.ErrPaymentNotConfirmed if the gateway does not report success.
//   - error: payments.ErrValidation if the metadata resolves to zero units.
//   - error: payments.ErrEventNotFound if the referenced event does not exist.
func (s *Service) Process(ctx context.Context, paymentKey string) (*domain.PipelineResult, error) {
	const op = "service.payments.Process"

	existing, err := s.store.GetBookingByPaymentKey(ctx, paymentKey)
	if err == nil {
		s.logger.Info("payment replayed, returning recorded result",
			"payment_key", paymentKey, "booking_id", existing.Booking.ID)
		return replayResult(existing), nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	tx, err := s.gateway.GetTransaction(ctx, paymentKey)
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, ErrGatewayUnavailable, err)
	}
	if !tx.Succeeded {
		return nil, fmt.Errorf("%s:%w", op, ErrPaymentNotConfirmed)
	}

	md := parseTxMetadata(tx.Metadata)
	if md.EventID == 0 {
		return nil, fmt.Errorf("%s:%w: missing event id", op, ErrValidation)
	}

	ev, err := s.store.GetEvent(ctx, md.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var (
		items   []domain.BookingLineItem
		units   []unit
		seatIDs []int64
	)

	switch ev.SeatingMode {
	case domain.SeatingAllocated:
		items, units, seatIDs, err = s.buildAllocated(ctx, md)
	default:
		items, units = s.buildGeneralAdmission(ctx, md)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrValidation)
	}

	items = append(items, foodLineItems(md)...)

	rawMeta, _ := json.Marshal(tx.Metadata)

	b := &domain.Booking{
		ID:            uuid.New(),
		EventID:       md.EventID,
		CustomerName:  md.CustomerName,
		CustomerEmail: tx.CustomerEmail,
		PaymentKey:    paymentKey,
		Status:        domain.BookingProcessing,
		TotalCents:    tx.AmountTotal,
		Currency:      tx.Currency,
		Metadata:      rawMeta,
	}

	skipped, err := s.store.MaterializeBooking(ctx, b, items, seatIDs)
	if err != nil {
		// Lost the race to a concurrent delivery of the same notification.
		if errors.Is(err, repository.ErrDuplicateKey) {
			winner, rerr := s.store.GetBookingByPaymentKey(ctx, paymentKey)
			if rerr != nil {
				return nil, fmt.Errorf("%s:%w", op, rerr)
			}
			return replayResult(winner), nil
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(skipped) > 0 {
		s.logger.Warn("seats already booked by another transaction, recorded sale without them",
			"payment_key", paymentKey, "booking_id", b.ID, "seat_ids", skipped)
	}

	// The booking is durable from here on: fulfillment and the final
	// status write must not die with the caller's request. Without this
	// a webhook client disconnect would strand the booking in processing.
	ctx = context.WithoutCancel(ctx)

	summary := s.fulfill(ctx, b, items, units)

	summaryJSON, _ := json.Marshal(summary)
	if err := s.store.Finish(ctx, b.ID, domain.BookingActive, summaryJSON); err != nil {
		if ferr := s.store.Finish(ctx, b.ID, domain.BookingFailed, summaryJSON); ferr != nil {
			s.logger.Error("could not mark booking failed", "booking_id", b.ID, "err", ferr)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.notifyChanged(ctx, md.EventID)

	return resultFrom(b.ID, false, summary), nil
}

// buildAllocated resolves the metadata seat labels to seat rows and
// groups them by ticket type, one line item per group with the group's
// labels as seat details.
func (s *Service) buildAllocated(
	ctx context.Context,
	md TxMetadata,
) ([]domain.BookingLineItem, []unit, []int64, error) {
	if len(md.SeatLabels) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no seats in metadata", ErrValidation)
	}

	seats, err := s.store.SeatsByLabels(ctx, md.EventID, md.SeatLabels)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(seats) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no seats resolved", ErrValidation)
	}

	priced := md.ticketByType()

	type group struct {
		tt     *domain.TicketType
		seats  []domain.Seat
		labels []string
	}

	groups := make(map[int64]*group)
	order := make([]int64, 0, 4)
	var items []domain.BookingLineItem
	var units []unit
	var seatIDs []int64

	for _, seat := range seats {
		if seat.TicketTypeID == nil {
			s.logger.Warn("seat has no ticket type, skipped", "seat_id", seat.ID)
			continue
		}

		g, ok := groups[*seat.TicketTypeID]
		if !ok {
			tt, err := s.store.GetTicketType(ctx, *seat.TicketTypeID)
			if err != nil {
				return nil, nil, nil, err
			}
			g = &group{tt: tt}
			groups[*seat.TicketTypeID] = g
			order = append(order, *seat.TicketTypeID)
		}

		g.seats = append(g.seats, seat)
		g.labels = append(g.labels, seat.Label())
		seatIDs = append(seatIDs, seat.ID)
	}

	for _, typeID := range order {
		g := groups[typeID]

		name := g.tt.Name
		price := g.tt.PriceCents
		if sel, ok := priced[typeID]; ok {
			if sel.Name != "" {
				name = sel.Name
			}
			price = sel.UnitPriceCents
		}

		seatDetails, _ := json.Marshal(g.labels)

		items = append(items, domain.BookingLineItem{
			ID:             uuid.New(),
			ItemType:       domain.ItemTicket,
			RefID:          typeID,
			Name:           name,
			Quantity:       len(g.seats),
			UnitPriceCents: price,
			TotalCents:     price * int64(len(g.seats)),
			SeatDetails:    seatDetails,
			Status:         domain.LineItemActive,
		})

		itemIdx := len(items) - 1
		for _, seat := range g.seats {
			label := seat.Label()
			units = append(units, unit{
				itemIdx:    itemIdx,
				label:      label,
				seatLabel:  label,
				ticketType: name,
				food:       md.foodForSeat(label),
			})
		}
	}

	return items, units, seatIDs, nil
}

// buildGeneralAdmission turns the tickets facet into line items directly,
// one per ticket type, with one fulfillment unit per quantity-unit.
func (s *Service) buildGeneralAdmission(ctx context.Context, md TxMetadata) ([]domain.BookingLineItem, []unit) {
	var items []domain.BookingLineItem
	var units []unit

	for _, sel := range md.Tickets {
		if sel.Quantity <= 0 {
			continue
		}

		if s.checker != nil {
			if ok, err := s.checker.IsAvailable(ctx, sel.TicketTypeID, sel.Quantity); err == nil && !ok {
				s.logger.Warn("ticket type over capacity, recording paid sale anyway",
					"ticket_type_id", sel.TicketTypeID, "quantity", sel.Quantity)
			}
		}

		items = append(items, domain.BookingLineItem{
			ID:             uuid.New(),
			ItemType:       domain.ItemTicket,
			RefID:          sel.TicketTypeID,
			Name:           sel.Name,
			Quantity:       sel.Quantity,
			UnitPriceCents: sel.UnitPriceCents,
			TotalCents:     sel.UnitPriceCents * int64(sel.Quantity),
			Status:         domain.LineItemActive,
		})

		itemIdx := len(items) - 1
		for q := 1; q <= sel.Quantity; q++ {
			units = append(units, unit{
				itemIdx:    itemIdx,
				label:      fmt.Sprintf("%s-%d", sel.Name, q),
				ticketType: sel.Name,
			})
		}
	}

	return items, units
}

func foodLineItems(md TxMetadata) []domain.BookingLineItem {
	var items []domain.BookingLineItem

	for _, f := range md.Food {
		if f.Quantity <= 0 {
			continue
		}

		var seatDetails []byte
		if f.SeatLabel != "" {
			seatDetails, _ = json.Marshal([]string{f.SeatLabel})
		}

		items = append(items, domain.BookingLineItem{
			ID:             uuid.New(),
			ItemType:       domain.ItemFood,
			RefID:          f.ItemID,
			Name:           f.Name,
			Quantity:       f.Quantity,
			UnitPriceCents: f.UnitPriceCents,
			TotalCents:     f.UnitPriceCents * int64(f.Quantity),
			SeatDetails:    seatDetails,
			Status:         domain.LineItemActive,
		})
	}

	return items
}

// fulfill renders and delivers every unit, recording each attempt's
// outcome. A unit's failure never aborts the others or the booking.
func (s *Service) fulfill(
	ctx context.Context,
	b *domain.Booking,
	items []domain.BookingLineItem,
	units []unit,
) fulfillmentSummary {
	var summary fulfillmentSummary
	coded := make(map[int]bool, len(items))

	for _, u := range units {
		fu := fulfillmentUnit{Label: u.label, SeatLabel: u.seatLabel}

		res, err := s.renderer.Render(ctx, RenderRequest{
			BookingID:  b.ID,
			Unit:       u.label,
			TicketType: u.ticketType,
			Label:      u.label,
			Attendee:   b.CustomerName,
			Food:       u.food,
		})
		if err != nil {
			fu.Err = err.Error()
			summary.Failed++
			summary.Units = append(summary.Units, fu)
			s.logger.Warn("ticket rendering failed",
				"booking_id", b.ID, "unit", u.label, "err", err)
			continue
		}

		fu.Rendered = true
		summary.RenderedOK++

		if !coded[u.itemIdx] {
			coded[u.itemIdx] = true
			if err := s.store.SetTicketCode(ctx, items[u.itemIdx].ID, res.Code); err != nil {
				s.logger.Warn("could not record ticket code",
					"booking_id", b.ID, "item_id", items[u.itemIdx].ID, "err", err)
			}
		}

		if err := s.mailer.Deliver(ctx, b.CustomerEmail, res.ArtifactLocation, map[string]string{
			"booking_id": b.ID.String(),
			"unit":       u.label,
			"qr":         res.QRPayload,
		}); err != nil {
			fu.Err = err.Error()
			summary.Failed++
			summary.Units = append(summary.Units, fu)
			s.logger.Warn("ticket delivery failed",
				"booking_id", b.ID, "unit", u.label, "err", err)
			continue
		}

		fu.Delivered = true
		summary.DeliveredOK++
		summary.Units = append(summary.Units, fu)
	}

	return summary
}

func replayResult(bw *domain.BookingWithItems) *domain.PipelineResult {
	var summary fulfillmentSummary
	if len(bw.Booking.Fulfillment) > 0 {
		_ = json.Unmarshal(bw.Booking.Fulfillment, &summary)
	}

	return resultFrom(bw.Booking.ID, true, summary)
}

func resultFrom(id uuid.UUID, replayed bool, summary fulfillmentSummary) *domain.PipelineResult {
	out := &domain.PipelineResult{
		BookingID:   id,
		Replayed:    replayed,
		RenderedOK:  summary.RenderedOK,
		DeliveredOK: summary.DeliveredOK,
		Failed:      summary.Failed,
	}

	for _, u := range summary.Units {
		out.Units = append(out.Units, domain.FulfillmentUnit{
			Label:     u.Label,
			SeatLabel: u.SeatLabel,
			Rendered:  u.Rendered,
			Delivered: u.Delivered,
			Err:       u.Err,
		})
	}

	return out
}

func (s *Service) notifyChanged(ctx context.Context, eventID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishEventChanged(ctx, eventID)
	}
}
