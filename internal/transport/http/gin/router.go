package httpgin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/viktorkud/seatwise/internal/domain"
	redisx "github.com/viktorkud/seatwise/internal/redis"
	redisrepo "github.com/viktorkud/seatwise/internal/repository/redis"
	"github.com/viktorkud/seatwise/internal/service"
	"github.com/viktorkud/seatwise/internal/service/availability"
	"github.com/viktorkud/seatwise/internal/service/catalog"
	"github.com/viktorkud/seatwise/internal/service/payments"
	"github.com/viktorkud/seatwise/internal/service/query"
	"github.com/viktorkud/seatwise/internal/service/reservation"
)

// WebhookVerifier authenticates inbound gateway notifications.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

func NewRouter(
	svcs *service.Services,
	verifier WebhookVerifier,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/seats", handleSeatMap(svcs))
	r.GET("/ticket-types/:id/availability", handleTypeAvailability(svcs))

	r.POST("/events/:id/holds", handleCreateHold(svcs, idem))
	r.POST("/events/:id/holds/release", handleReleaseHold(svcs))
	r.POST("/events/:id/seats/check", handleCheckSeats(svcs))

	r.POST("/payments/webhook", handlePaymentWebhook(svcs, verifier, idem, logger))
	r.GET("/bookings/:id", handleGetBooking(svcs))

	// Admin API
	// TODO: add admin auth middleware
	admin := r.Group("/admin")
	{
		admin.POST("/events", handleCreateEvent(svcs))
		admin.POST("/events/:id/seats", handleBatchCreateSeats(svcs))
		admin.POST("/events/:id/ticket-types", handleCreateTicketType(svcs))
		admin.PATCH("/events/:id/seats/:seatID/blocked", handleSetSeatBlocked(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get event summary
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  query.EventSummary
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		summary, err := svcs.Query.EventSummary(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, summary, "public, max-age=15", true)
	}
}

// @Summary  Get seat map
// @Param    id  path  int  true  "Event ID"
// @Success  200  {array}  query.SeatView
// @Router   /events/{id}/seats [get]
func handleSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seats, err := svcs.Query.SeatMap(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, seats, "public, max-age=5", true)
	}
}

// @Summary  Ticket type availability
// @Param    id  path  int  true  "Ticket type ID"
// @Success  200  {object}  query.TypeAvailabilityView
// @Failure  404  {object}  ErrorResponse
// @Router   /ticket-types/{id}/availability [get]
func handleTypeAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		typeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		av, err := svcs.Query.TypeAvailability(c.Request.Context(), typeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, av, "public, max-age=5", true)
	}
}

// @Summary  Create hold (idempotent)
// @Param    id  path  int  true  "Event ID"
// @Param    req body  CreateHoldRequest true "payload"
// @Success  201 {object} CreateHoldResponse
// @Failure  409 {object} ErrorResponse "seats unavailable / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/holds [post]
func handleCreateHold(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisx.KeyIdemHold(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		hold, err := svcs.Reservation.ReserveMany(
			c.Request.Context(),
			eventID,
			req.SeatIDs,
			req.Owner,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, reservation.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
			respondErr(c, err)
			return
		}

		resp := CreateHoldResponse{
			HoldID:    hold.ID.String(),
			Kind:      string(hold.Kind),
			SeatIDs:   hold.SeatIDs,
			ExpiresAt: hold.ExpiresAt,
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Release a held seat
// @Param    id  path  int  true  "Event ID"
// @Param    req body  ReleaseHoldRequest true "payload"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/holds/release [post]
func handleReleaseHold(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ReleaseHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		err := svcs.Reservation.Release(c.Request.Context(), eventID, req.SeatID, req.Owner)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Check seat availability
// @Param    id  path  int  true  "Event ID"
// @Param    req body  CheckSeatsRequest true "payload"
// @Success  200 {object} CheckSeatsResponse
// @Router   /events/{id}/seats/check [post]
func handleCheckSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CheckSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		cls, err := svcs.Reservation.CheckAvailability(c.Request.Context(), eventID, req.SeatIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := CheckSeatsResponse{Available: cls.Available}
		for _, u := range cls.Unavailable {
			resp.Unavailable = append(resp.Unavailable, UnavailableSeat{
				SeatID:    u.SeatID,
				Reason:    string(u.Reason),
				ExpiresAt: u.ExpiresAt,
			})
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Payment gateway webhook
// @Success  200 {object} WebhookResponse
// @Failure  400 {object} ErrorResponse "bad signature"
// @Router   /payments/webhook [post]
func handlePaymentWebhook(
	svcs *service.Services,
	verifier WebhookVerifier,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			badRequest(c, "cannot read body")
			return
		}

		event, err := verifier.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			badRequest(c, "invalid signature")
			return
		}

		if event.Type != "payment_intent.succeeded" {
			c.JSON(http.StatusOK, WebhookResponse{Received: true})
			return
		}

		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
			c.JSON(http.StatusOK, WebhookResponse{Received: true, Error: "unparseable event payload"})
			return
		}

		idemStorageKey := redisx.KeyIdemPayment(pi.ID)
		if idem != nil {
			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
				return
			}
			if locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 2*time.Minute); err == nil && !locked {
				// A concurrent delivery is processing this intent; the durable
				// payment-key constraint makes re-running safe.
				logger.Info("concurrent webhook delivery", "payment_key", pi.ID)
			}
		}

		result, err := svcs.Payments.Process(c.Request.Context(), pi.ID)
		if err != nil {
			if idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			logger.Error("payment materialization failed", "payment_key", pi.ID, "err", err)

			// The event is authenticated; never induce a gateway retry storm.
			c.JSON(http.StatusOK, WebhookResponse{Received: true, Error: webhookErrDetail(err)})
			return
		}

		resp := WebhookResponse{
			Received:  true,
			BookingID: result.BookingID.String(),
			Replayed:  result.Replayed,
		}

		if idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Get booking with line items
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid booking id")
			return
		}

		bw, err := svcs.Query.GetBooking(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := BookingResponse{
			ID:            bw.Booking.ID.String(),
			EventID:       bw.Booking.EventID,
			CustomerName:  bw.Booking.CustomerName,
			CustomerEmail: bw.Booking.CustomerEmail,
			Status:        string(bw.Booking.Status),
			TotalCents:    bw.Booking.TotalCents,
			Currency:      bw.Booking.Currency,
			CreatedAt:     bw.Booking.CreatedAt,
		}
		for _, li := range bw.Items {
			resp.Items = append(resp.Items, BookingItemView{
				ID:             li.ID.String(),
				ItemType:       string(li.ItemType),
				Name:           li.Name,
				Quantity:       li.Quantity,
				UnitPriceCents: li.UnitPriceCents,
				TotalCents:     li.TotalCents,
				TicketCode:     li.TicketCode,
				Status:         string(li.Status),
			})
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Create event with optional seat layout
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}

		id, err := svcs.Catalog.CreateEvent(c.Request.Context(), catalog.CreateEventInput{
			Title:       req.Title,
			Starts:      starts,
			Ends:        ends,
			SeatingMode: domain.SeatingMode(req.SeatingMode),
			Seats:       seatsFromInput(req.Seats),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  Batch create seats
// @Param    id  path  int  true  "Event ID"
// @Param    req body  BatchCreateSeatsRequest true "payload"
// @Success  201 {object} map[string]int
// @Router   /admin/events/{id}/seats [post]
func handleBatchCreateSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req BatchCreateSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		seats := seatsFromInput(req.Seats)
		if err := svcs.Catalog.AddSeats(c.Request.Context(), eventID, seats); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"created": len(seats)})
	}
}

// @Summary  Create ticket type
// @Param    id  path  int  true  "Event ID"
// @Param    req body  CreateTicketTypeRequest true "payload"
// @Success  201 {object} CreateTicketTypeResponse
// @Router   /admin/events/{id}/ticket-types [post]
func handleCreateTicketType(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateTicketTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		id, err := svcs.Catalog.CreateTicketType(c.Request.Context(), catalog.CreateTicketTypeInput{
			EventID:    eventID,
			Name:       req.Name,
			PriceCents: req.PriceCents,
			MaxTickets: req.MaxTickets,
			RowFrom:    req.RowFrom,
			RowTo:      req.RowTo,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateTicketTypeResponse{TicketTypeID: id})
	}
}

// @Summary  Block or unblock a seat
// @Param    id      path  int  true  "Event ID"
// @Param    seatID  path  int  true  "Seat ID"
// @Param    req body  SetSeatBlockedRequest true "payload"
// @Success  204
// @Failure  409 {object} ErrorResponse "seat is booked"
// @Router   /admin/events/{id}/seats/{seatID}/blocked [patch]
func handleSetSeatBlocked(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seatID, ok := parseInt64Param(c, "seatID")
		if !ok {
			return
		}
		var req SetSeatBlockedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		err := svcs.Catalog.SetSeatBlocked(c.Request.Context(), eventID, seatID, *req.Blocked)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func seatsFromInput(in []SeatInput) []domain.Seat {
	var seats []domain.Seat
	for _, s := range in {
		seats = append(seats, domain.Seat{
			Row:    s.Row,
			Number: s.Number,
			PosX:   s.PosX,
			PosY:   s.PosY,
		})
	}
	return seats
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func webhookErrDetail(err error) string {
	switch {
	case errors.Is(err, payments.ErrPaymentNotConfirmed):
		return "payment not confirmed"
	case errors.Is(err, payments.ErrValidation):
		return "validation failure"
	case errors.Is(err, payments.ErrEventNotFound):
		return "event not found"
	case errors.Is(err, payments.ErrGatewayUnavailable):
		return "gateway unavailable"
	}
	return "internal error"
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// reservation service
	case errors.Is(err, reservation.ErrSeatsUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats unavailable"})
		return
	case errors.Is(err, reservation.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "hold not found"})
		return
	case errors.Is(err, reservation.ErrNoSeatsSelected):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no seats selected"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, query.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	// availability service
	case errors.Is(err, availability.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket type not found"})
		return
	// catalog service
	case errors.Is(err, catalog.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input"})
		return
	case errors.Is(err, catalog.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, catalog.ErrSeatNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "seat not found"})
		return
	case errors.Is(err, catalog.ErrSeatIsBooked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seat is booked"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
