package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/notify"
	redisclient "github.com/Krish-Makadiya/Aroga-sub001/internal/redis"
)

const (
	EventEmergencyRaised  = "EMERGENCY_RAISED"
	EventEmergencyMatched = "EMERGENCY_MATCHED"

	recordLockKind = "emergency"
)

var (
	ErrEmergencyBeingMatched = errors.New("emergency is currently being matched, please retry")
	ErrInvalidPhone          = errors.New("phone number is required")
	ErrInvalidLocation       = errors.New("location coordinates are out of range")
)

type Service struct {
	repo           Repository
	apptRepo       appointment.Repository
	locker         redisclient.Locker
	meetingBaseURL string
	log            zerolog.Logger
	now            func() time.Time
}

func NewService(repo Repository, apptRepo appointment.Repository, locker redisclient.Locker, meetingBaseURL string, log zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		apptRepo:       apptRepo,
		locker:         locker,
		meetingBaseURL: meetingBaseURL,
		log:            log,
		now:            time.Now,
	}
}

type RaiseParams struct {
	RequesterID uuid.UUID
	Phone       string
	Latitude    float64
	Longitude   float64
}

// Raise creates an emergency record in the raised state.
func (s *Service) Raise(ctx context.Context, params RaiseParams) (*Emergency, error) {
	if params.Phone == "" {
		return nil, ErrInvalidPhone
	}
	if params.Latitude < -90 || params.Latitude > 90 ||
		params.Longitude < -180 || params.Longitude > 180 {
		return nil, ErrInvalidLocation
	}

	em := &Emergency{
		ID:          uuid.New(),
		RequesterID: params.RequesterID,
		Phone:       params.Phone,
		Latitude:    params.Latitude,
		Longitude:   params.Longitude,
		Status:      StatusRaised,
	}

	created, err := s.repo.CreateEmergency(ctx, em)
	if err != nil {
		return nil, fmt.Errorf("create emergency: %w", err)
	}

	s.logEvent(ctx, nil, EventEmergencyRaised, map[string]any{
		"emergency_id": created.ID.String(),
		"requester_id": params.RequesterID.String(),
	})

	return created, nil
}

// Match converts a raised emergency into a doctor-assigned, immediately
// joinable appointment. The Redis record lock keeps two matchers from opening
// concurrent conversions; the version guard inside the transaction is the
// final arbiter, so exactly one caller wins either way.
func (s *Service) Match(ctx context.Context, emergencyID, doctorID uuid.UUID) (*Emergency, *appointment.Appointment, error) {
	var (
		closed  *Emergency
		created *appointment.Appointment
	)

	err := s.locker.WithRecordLock(ctx, recordLockKind, emergencyID, func(lockCtx context.Context) error {
		em, err := s.repo.GetEmergencyByID(lockCtx, emergencyID)
		if err != nil {
			return err
		}
		if em.Status != StatusRaised {
			return ErrAlreadyMatched
		}

		doctor, err := s.apptRepo.GetDoctorByID(lockCtx, doctorID)
		if err != nil {
			return err
		}

		appt := s.buildEmergencyAppointment(em, doctor)

		sms := OutboundSMS{
			Topic:     notify.TopicEmergencyMatched,
			Recipient: em.Phone,
			Payload: map[string]any{
				"message":        fmt.Sprintf("Dr. %s is ready to see you now. Join here: %s", doctor.Name, *appt.MeetingLink),
				"emergency_id":   em.ID.String(),
				"appointment_id": appt.ID.String(),
				"meeting_link":   *appt.MeetingLink,
			},
		}

		closed, created, err = s.repo.ConvertToAppointment(lockCtx, em, appt, sms)
		return err
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrEmergencyBeingMatched
		}
		return nil, nil, err
	}

	s.logEvent(ctx, &created.ID, EventEmergencyMatched, map[string]any{
		"emergency_id": closed.ID.String(),
		"doctor_id":    doctorID.String(),
	})

	return closed, created, nil
}

// buildEmergencyAppointment materializes the post-pending appointment: already
// confirmed, meeting link in place, amount from the doctor's standard fee.
func (s *Service) buildEmergencyAppointment(em *Emergency, doctor *appointment.Doctor) *appointment.Appointment {
	id := uuid.New()
	link := appointment.MeetingLink(s.meetingBaseURL, id)

	return &appointment.Appointment{
		ID:            id,
		PatientID:     em.RequesterID,
		DoctorID:      doctor.ID,
		ScheduledAt:   s.now(),
		Status:        appointment.StatusConfirmed,
		Type:          appointment.TypeOnline,
		Amount:        doctor.ConsultationFee,
		PaymentStatus: appointment.PaymentPending,
		Symptoms:      []string{},
		Prescription:  []appointment.PrescriptionItem{},
		MeetingLink:   &link,
		Emergency:     true,
	}
}

// GetEmergency retrieves an emergency record by ID
func (s *Service) GetEmergency(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	em, err := s.repo.GetEmergencyByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get emergency: %w", err)
	}
	return em, nil
}

// ListActive retrieves raised emergencies for the dispatch console
func (s *Service) ListActive(ctx context.Context, limit int) ([]Emergency, error) {
	if limit <= 0 {
		limit = 50 // default
	}
	if limit > 200 {
		limit = 200 // max
	}

	items, err := s.repo.ListRaised(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list raised emergencies: %w", err)
	}
	return items, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.apptRepo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to insert event log")
	}
}
