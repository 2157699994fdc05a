package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/payment"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventPaymentOrderCreated  = "PAYMENT_ORDER_CREATED"
	EventPaymentRecorded      = "PAYMENT_RECORDED"
	EventPrescriptionUpdated  = "PRESCRIPTION_UPDATED"
	EventRatingSubmitted      = "RATING_SUBMITTED"
)

// Mutations retry this many times on a lost compare-and-swap before giving up
// with ErrConflict.
const maxCASAttempts = 3

var (
	ErrIllegalTransition       = errors.New("illegal status transition")
	ErrUnauthorized            = errors.New("actor is not allowed to perform this transition")
	ErrAppointmentClosed       = errors.New("appointment is closed, prescription can no longer change")
	ErrAppointmentNotConfirmed = errors.New("appointment is not confirmed")
	ErrNotCompleted            = errors.New("appointment is not completed")
	ErrAlreadyRated            = errors.New("appointment has already been rated")
	ErrInvalidRating           = errors.New("rating must be an integer between 1 and 5")
	ErrNotJoinable             = errors.New("appointment has no joinable video session")
	ErrPaymentRequired         = errors.New("appointment must be paid before joining")
	ErrConflict                = errors.New("appointment was modified concurrently, retry")
	ErrExternalDependency      = errors.New("external dependency failed")
)

// legalTransitions is the full set of allowed status moves. Everything else,
// including any move out of completed or cancelled, is illegal.
var legalTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

type Service struct {
	repo           Repository
	provider       payment.Provider
	meetingBaseURL string
	log            zerolog.Logger
	now            func() time.Time
}

func NewService(repo Repository, provider payment.Provider, meetingBaseURL string, log zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		provider:       provider,
		meetingBaseURL: meetingBaseURL,
		log:            log,
		now:            time.Now,
	}
}

type BookParams struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Type        AppointmentType
	Symptoms    []string
}

// Book validates the proposed slot and creates a pending appointment. The
// consultation amount is taken from the doctor's standard fee at booking time.
func (s *Service) Book(ctx context.Context, params BookParams) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, params.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, params.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if err := CheckSlot(params.ScheduledAt, s.now()); err != nil {
		return nil, err
	}

	apptType := params.Type
	if apptType == "" {
		apptType = TypeOnline
	}

	symptoms := params.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}

	appt := &Appointment{
		ID:            uuid.New(),
		PatientID:     params.PatientID,
		DoctorID:      params.DoctorID,
		ScheduledAt:   params.ScheduledAt,
		Status:        StatusPending,
		Type:          apptType,
		Amount:        doctor.ConsultationFee,
		PaymentStatus: PaymentPending,
		Symptoms:      symptoms,
		Prescription:  []PrescriptionItem{},
	}

	created, err := s.repo.CreateAppointment(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"patient_id":   params.PatientID.String(),
		"doctor_id":    params.DoctorID.String(),
		"scheduled_at": params.ScheduledAt,
		"type":         string(apptType),
	})

	return created, nil
}

func transitionAllowed(from, to AppointmentStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// authorizeTransition enforces who may move an appointment. The doctor of
// record owns pending->confirmed, pending->cancelled and confirmed->completed;
// confirmed->cancelled is open to the doctor and the patient of record.
func authorizeTransition(a *Appointment, requested AppointmentStatus, actor Actor) error {
	isDoctor := actor.Role == RoleDoctor && actor.ID == a.DoctorID
	isPatient := actor.Role == RolePatient && actor.ID == a.PatientID

	if a.Status == StatusConfirmed && requested == StatusCancelled {
		if isDoctor || isPatient {
			return nil
		}
		return ErrUnauthorized
	}

	if !isDoctor {
		return ErrUnauthorized
	}
	return nil
}

// Transition moves an appointment to the requested status, applying the side
// effects of the target state. Concurrent transitions on the same record
// serialize on the version column: the loser re-reads and, if the state it
// wanted to leave is gone, gets a definitive ErrIllegalTransition instead of
// a blind retry.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, requested AppointmentStatus, actor Actor) (*Appointment, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if !transitionAllowed(appt.Status, requested) {
			return nil, ErrIllegalTransition
		}
		if err := authorizeTransition(appt, requested, actor); err != nil {
			return nil, err
		}

		prev := appt.Status
		appt.Status = requested
		if requested == StatusConfirmed && appt.Type == TypeOnline && appt.MeetingLink == nil {
			link := MeetingLink(s.meetingBaseURL, appt.ID)
			appt.MeetingLink = &link
		}
		// Cancellation keeps the prescription and meeting link untouched so
		// the audit history survives.

		updated, err := s.repo.UpdateAppointment(ctx, appt)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}

		s.logEvent(ctx, updated.ID, transitionEvent(requested), map[string]any{
			"from":     string(prev),
			"to":       string(requested),
			"actor_id": actor.ID.String(),
			"role":     string(actor.Role),
		})

		return updated, nil
	}

	return nil, ErrConflict
}

func transitionEvent(to AppointmentStatus) string {
	switch to {
	case StatusConfirmed:
		return EventAppointmentConfirmed
	case StatusCompleted:
		return EventAppointmentCompleted
	case StatusCancelled:
		return EventAppointmentCancelled
	}
	return "APPOINTMENT_STATUS_CHANGED"
}

// WritePrescription replaces the prescription item list. Writes are rejected
// once the appointment is completed or cancelled.
func (s *Service) WritePrescription(ctx context.Context, id uuid.UUID, items []PrescriptionItem, actor Actor) (*Appointment, error) {
	if items == nil {
		items = []PrescriptionItem{}
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if actor.Role != RoleDoctor || actor.ID != appt.DoctorID {
			return nil, ErrUnauthorized
		}
		if appt.Closed() {
			return nil, ErrAppointmentClosed
		}

		appt.Prescription = items

		updated, err := s.repo.UpdateAppointment(ctx, appt)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update prescription: %w", err)
		}

		s.logEvent(ctx, updated.ID, EventPrescriptionUpdated, map[string]any{
			"items": len(items),
		})

		return updated, nil
	}

	return nil, ErrConflict
}

// CreatePaymentOrder asks the gateway for an order the client can pay against.
// Gateway failure is surfaced as ErrExternalDependency and leaves the
// appointment untouched.
func (s *Service) CreatePaymentOrder(ctx context.Context, id uuid.UUID) (*Appointment, payment.Order, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, payment.Order{}, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status != StatusConfirmed && appt.Status != StatusCompleted {
		return nil, payment.Order{}, ErrAppointmentNotConfirmed
	}
	if appt.PaymentStatus == PaymentPaid {
		return nil, payment.Order{}, ErrConflict
	}

	order, err := s.provider.CreateOrder(ctx, appt.ID, appt.Amount)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("payment order creation failed")
		return nil, payment.Order{}, fmt.Errorf("%w: create order: %v", ErrExternalDependency, err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		appt.PaymentOrderRef = &order.Ref

		updated, err := s.repo.UpdateAppointment(ctx, appt)
		if errors.Is(err, ErrVersionConflict) {
			appt, err = s.repo.GetAppointmentByID(ctx, id)
			if err != nil {
				return nil, payment.Order{}, fmt.Errorf("reload appointment: %w", err)
			}
			if appt.PaymentStatus == PaymentPaid {
				return nil, payment.Order{}, ErrConflict
			}
			continue
		}
		if err != nil {
			return nil, payment.Order{}, fmt.Errorf("store order ref: %w", err)
		}

		s.logEvent(ctx, updated.ID, EventPaymentOrderCreated, map[string]any{
			"order_ref": order.Ref,
			"amount":    order.Amount,
		})

		return updated, order, nil
	}

	return nil, payment.Order{}, ErrConflict
}

// RecordPayment marks the appointment paid on gateway confirmation. Calling it
// again with the same paymentRef is a no-op returning the paid record; a
// different paymentRef after payment is a conflict, never a second charge.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, orderRef, paymentRef string) (*Appointment, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if appt.PaymentStatus == PaymentPaid {
			if appt.PaymentRef != nil && *appt.PaymentRef == paymentRef {
				return appt, nil
			}
			return nil, ErrConflict
		}

		if appt.Status != StatusConfirmed && appt.Status != StatusCompleted {
			return nil, ErrAppointmentNotConfirmed
		}

		paidAt := s.now()
		appt.PaymentStatus = PaymentPaid
		appt.PaymentOrderRef = &orderRef
		appt.PaymentRef = &paymentRef
		appt.PaidAt = &paidAt

		updated, err := s.repo.UpdateAppointment(ctx, appt)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record payment: %w", err)
		}

		s.logEvent(ctx, updated.ID, EventPaymentRecorded, map[string]any{
			"order_ref":   orderRef,
			"payment_ref": paymentRef,
		})

		return updated, nil
	}

	return nil, ErrConflict
}

// CanJoin is the payment gate: an online appointment is joinable once it is
// confirmed or completed and either free or paid. Read-only.
func CanJoin(a *Appointment) bool {
	if a.Type != TypeOnline {
		return false
	}
	if a.Status != StatusConfirmed && a.Status != StatusCompleted {
		return false
	}
	return a.Amount == 0 || a.PaymentStatus == PaymentPaid
}

// Join returns the meeting link when the payment gate allows it.
func (s *Service) Join(ctx context.Context, id uuid.UUID) (string, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load appointment: %w", err)
	}

	if appt.Type == TypeOnline &&
		(appt.Status == StatusConfirmed || appt.Status == StatusCompleted) &&
		appt.Amount > 0 && appt.PaymentStatus != PaymentPaid {
		return "", ErrPaymentRequired
	}
	if !CanJoin(appt) || appt.MeetingLink == nil {
		return "", ErrNotJoinable
	}

	return *appt.MeetingLink, nil
}

// SubmitRating captures the post-consultation rating exactly once.
func (s *Service) SubmitRating(ctx context.Context, id uuid.UUID, value int, review string) (*Appointment, error) {
	if value < 1 || value > 5 {
		return nil, ErrInvalidRating
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if appt.Status != StatusCompleted {
			return nil, ErrNotCompleted
		}
		if appt.RatingValue != nil {
			return nil, ErrAlreadyRated
		}

		v := value
		rev := review
		appt.RatingValue = &v
		appt.RatingReview = &rev

		updated, err := s.repo.UpdateAppointment(ctx, appt)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("submit rating: %w", err)
		}

		s.logEvent(ctx, updated.ID, EventRatingSubmitted, map[string]any{
			"value": value,
		})

		return updated, nil
	}

	return nil, ErrConflict
}

// GetAppointment retrieves an appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByDoctor retrieves appointments for a specific doctor
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)

	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
