package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier is the out-of-band SMS collaborator. Dispatch failures are retried
// by the outbox worker; they never reach back into appointment state.
type Notifier interface {
	SendSMS(ctx context.Context, to, message string) error
}

// LogNotifier writes the message to the log instead of a gateway. Default in
// dev; production wires a real SMS provider behind the same interface.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) SendSMS(ctx context.Context, to, message string) error {
	n.Log.Info().Str("to", to).Str("message", message).Msg("sms dispatched")
	return nil
}
