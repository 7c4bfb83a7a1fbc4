package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/marketstall/api/internal/services"
)

// StripeLogger defines the logging contract for Stripe refund operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeRefunderConfig configures the StripeRefunder.
type StripeRefunderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Refunds   stripeRefundAPI
}

// StripeRefunder implements services.PaymentRefunder using the Stripe Refunds API.
type StripeRefunder struct {
	refunds stripeRefundAPI
	account string
	clock   func() time.Time
	logger  StripeLogger
}

var _ services.PaymentRefunder = (*StripeRefunder)(nil)

// NewStripeRefunder constructs a Stripe-backed refunder using the given configuration.
func NewStripeRefunder(cfg StripeRefunderConfig) (*StripeRefunder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Refunds == nil {
		return nil, errors.New("stripe: api key is required")
	}

	refunds := cfg.Refunds
	if refunds == nil {
		sc := client.New(apiKey, cfg.Backends)
		refunds = sc.Refunds
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeRefunder{
		refunds: refunds,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Refund creates a refund against the captured payment intent. The refund is
// scoped to the item amount, never the full intent.
func (p *StripeRefunder) Refund(ctx context.Context, req services.RefundPaymentRequest) (services.RefundPaymentResult, error) {
	if p == nil || p.refunds == nil {
		return services.RefundPaymentResult{}, errors.New("stripe: refunder is not initialised")
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return services.RefundPaymentResult{}, errors.New("stripe: payment intent id is required")
	}
	if req.Amount <= 0 {
		return services.RefundPaymentResult{}, fmt.Errorf("stripe: invalid refund amount %d", req.Amount)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := p.refunds.New(params)
	if err != nil {
		return services.RefundPaymentResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": intentID,
		"refundId":      refund.ID,
		"amount":        req.Amount,
	})

	return services.RefundPaymentResult{ProviderRefundID: refund.ID}, nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
