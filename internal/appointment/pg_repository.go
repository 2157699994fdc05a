package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `
	id, patient_id, doctor_id, scheduled_at, status, appointment_type, amount,
	payment_status, payment_order_ref, payment_ref, paid_at,
	symptoms, prescription, meeting_link, rating_value, rating_review,
	emergency, version, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Phone,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.ConsultationFee,
		&d.Available,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var symptoms, prescription []byte

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ScheduledAt,
		&a.Status,
		&a.Type,
		&a.Amount,
		&a.PaymentStatus,
		&a.PaymentOrderRef,
		&a.PaymentRef,
		&a.PaidAt,
		&symptoms,
		&prescription,
		&a.MeetingLink,
		&a.RatingValue,
		&a.RatingReview,
		&a.Emergency,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(symptoms, &a.Symptoms); err != nil {
		return nil, fmt.Errorf("decode symptoms: %w", err)
	}
	if err := json.Unmarshal(prescription, &a.Prescription); err != nil {
		return nil, fmt.Errorf("decode prescription: %w", err)
	}

	return &a, nil
}

func marshalAppointmentJSON(a *Appointment) (symptoms, prescription []byte, err error) {
	s := a.Symptoms
	if s == nil {
		s = []string{}
	}
	p := a.Prescription
	if p == nil {
		p = []PrescriptionItem{}
	}

	symptoms, err = json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("encode symptoms: %w", err)
	}
	prescription, err = json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encode prescription: %w", err)
	}
	return symptoms, prescription, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_fee, available, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	symptoms, prescription, err := marshalAppointmentJSON(a)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, scheduled_at, status, appointment_type, amount,
			payment_status, payment_order_ref, payment_ref, paid_at,
			symptoms, prescription, meeting_link, rating_value, rating_review,
			emergency, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, now(), now())
		RETURNING `+appointmentColumns+`
	`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Status, a.Type, a.Amount,
		a.PaymentStatus, a.PaymentOrderRef, a.PaymentRef, a.PaidAt,
		symptoms, prescription, a.MeetingLink, a.RatingValue, a.RatingReview,
		a.Emergency,
	)

	return scanAppointment(row)
}

// UpdateAppointment writes the full record back guarded by the version the
// caller read, so two concurrent read-modify-write cycles cannot both apply.
func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	symptoms, prescription, err := marshalAppointmentJSON(a)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    amount = $3,
		    payment_status = $4,
		    payment_order_ref = $5,
		    payment_ref = $6,
		    paid_at = $7,
		    symptoms = $8,
		    prescription = $9,
		    meeting_link = $10,
		    rating_value = $11,
		    rating_review = $12,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $13
		RETURNING `+appointmentColumns+`
	`,
		a.ID, a.Status, a.Amount, a.PaymentStatus, a.PaymentOrderRef, a.PaymentRef,
		a.PaidAt, symptoms, prescription, a.MeetingLink, a.RatingValue, a.RatingReview,
		a.Version,
	)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row exists but the version moved, or the row is gone; either way
			// the caller must re-read.
			if exists, exErr := r.appointmentExists(ctx, a.ID); exErr == nil && exists {
				return nil, ErrVersionConflict
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) appointmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
	`, id).Scan(&exists)
	return exists, err
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
