package emergency

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
)

var (
	ErrEmergencyNotFound = errors.New("emergency not found")
	ErrAlreadyMatched    = errors.New("emergency has already been matched")
)

// OutboundSMS describes the notification enqueued alongside the conversion.
type OutboundSMS struct {
	Topic     string
	Recipient string
	Payload   map[string]any
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateEmergency(ctx context.Context, e *Emergency) (*Emergency, error)
	GetEmergencyByID(ctx context.Context, id uuid.UUID) (*Emergency, error)
	ListRaised(ctx context.Context, limit int) ([]Emergency, error)

	// ConvertToAppointment closes the emergency, creates the appointment and
	// enqueues the SMS in a single transaction. The close is guarded by the
	// version the caller read; a lost race returns ErrAlreadyMatched.
	ConvertToAppointment(ctx context.Context, e *Emergency, appt *appointment.Appointment, sms OutboundSMS) (*Emergency, *appointment.Appointment, error)
}
