package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/viktorkud/seatwise/internal/service/payments"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeGateway resolves payment intents through the Stripe API. The
// intent id doubles as the booking idempotency key.
type StripeGateway struct {
	cfg StripeConfig
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	stripe.Key = cfg.SecretKey

	return &StripeGateway{cfg: cfg}, nil
}

// GetTransaction fetches Stripe's authoritative record for an intent.
// Succeeded is true only for the terminal succeeded status; anything
// still in flight counts as not confirmed.
func (g *StripeGateway) GetTransaction(ctx context.Context, paymentKey string) (*payments.Transaction, error) {
	if paymentKey == "" {
		return nil, fmt.Errorf("payment key is required")
	}

	pi, err := paymentintent.Get(paymentKey, nil)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	tx := &payments.Transaction{
		ID:          pi.ID,
		Succeeded:   pi.Status == stripe.PaymentIntentStatusSucceeded,
		AmountTotal: pi.Amount,
		Currency:    string(pi.Currency),
		Metadata:    pi.Metadata,
	}

	if pi.ReceiptEmail != "" {
		tx.CustomerEmail = pi.ReceiptEmail
	} else if pi.Customer != nil {
		tx.CustomerEmail = pi.Customer.Email
	}

	return tx, nil
}

// VerifyWebhook authenticates a webhook payload against the endpoint
// secret and returns the parsed event.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, g.cfg.WebhookSecret)
}
