package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Order is the gateway-side order a client pays against.
type Order struct {
	Ref      string
	Amount   int64 // currency minor units
	Currency string
}

// Provider abstracts the external payment gateway. The core workflow only
// creates orders through it; settlement confirmation arrives via callback to
// the record-payment endpoint.
type Provider interface {
	CreateOrder(ctx context.Context, appointmentID uuid.UUID, amount int64) (Order, error)
}

// SandboxProvider issues local order refs without contacting a gateway.
// Used in dev and in tests.
type SandboxProvider struct {
	Currency string
	Log      zerolog.Logger
}

func (p *SandboxProvider) CreateOrder(ctx context.Context, appointmentID uuid.UUID, amount int64) (Order, error) {
	currency := p.Currency
	if currency == "" {
		currency = "INR"
	}

	order := Order{
		Ref:      fmt.Sprintf("order_%s", uuid.NewString()[:13]),
		Amount:   amount,
		Currency: currency,
	}

	p.Log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("order_ref", order.Ref).
		Int64("amount", amount).
		Msg("sandbox payment order created")

	return order, nil
}
