package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/notify"
)

const emergencyColumns = `
	id, requester_id, phone, latitude, longitude, status, appointment_id,
	version, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanEmergency(row pgx.Row) (*Emergency, error) {
	var e Emergency

	err := row.Scan(
		&e.ID,
		&e.RequesterID,
		&e.Phone,
		&e.Latitude,
		&e.Longitude,
		&e.Status,
		&e.AppointmentID,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmergencyNotFound
		}
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) CreateEmergency(ctx context.Context, e *Emergency) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO emergencies (id, requester_id, phone, latitude, longitude, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'raised', 1, now(), now())
		RETURNING `+emergencyColumns+`
	`, e.ID, e.RequesterID, e.Phone, e.Latitude, e.Longitude)

	return scanEmergency(row)
}

func (r *PgRepository) GetEmergencyByID(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+emergencyColumns+`
		FROM emergencies
		WHERE id = $1
	`, id)
	return scanEmergency(row)
}

func (r *PgRepository) ListRaised(ctx context.Context, limit int) ([]Emergency, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+emergencyColumns+`
		FROM emergencies
		WHERE status = 'raised'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ConvertToAppointment is the single-winner step: the emergency close, the
// appointment insert and the outbox row commit together or not at all.
func (r *PgRepository) ConvertToAppointment(ctx context.Context, e *Emergency, appt *appointment.Appointment, sms OutboundSMS) (*Emergency, *appointment.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin conversion: %w", err)
	}
	defer tx.Rollback(ctx)

	symptoms, err := json.Marshal(appt.Symptoms)
	if err != nil {
		return nil, nil, fmt.Errorf("encode symptoms: %w", err)
	}
	prescription, err := json.Marshal(appt.Prescription)
	if err != nil {
		return nil, nil, fmt.Errorf("encode prescription: %w", err)
	}

	apptRow := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, scheduled_at, status, appointment_type, amount,
			payment_status, symptoms, prescription, meeting_link, emergency,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, 1, now(), now())
		RETURNING id, patient_id, doctor_id, scheduled_at, status, appointment_type, amount,
			payment_status, payment_order_ref, payment_ref, paid_at,
			symptoms, prescription, meeting_link, rating_value, rating_review,
			emergency, version, created_at, updated_at
	`,
		appt.ID, appt.PatientID, appt.DoctorID, appt.ScheduledAt, appt.Status, appt.Type,
		appt.Amount, appt.PaymentStatus, symptoms, prescription, appt.MeetingLink,
	)

	createdAppt, err := scanTxAppointment(apptRow)
	if err != nil {
		return nil, nil, fmt.Errorf("insert emergency appointment: %w", err)
	}

	emRow := tx.QueryRow(ctx, `
		UPDATE emergencies
		SET status = 'closed',
		    appointment_id = $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'raised'
		  AND version = $3
		RETURNING `+emergencyColumns+`
	`, e.ID, createdAppt.ID, e.Version)

	closed, err := scanEmergency(emRow)
	if err != nil {
		if errors.Is(err, ErrEmergencyNotFound) {
			// Row moved out of raised underneath us; the other matcher won.
			return nil, nil, ErrAlreadyMatched
		}
		return nil, nil, fmt.Errorf("close emergency: %w", err)
	}

	if err := notify.Enqueue(ctx, tx, sms.Topic, sms.Recipient, sms.Payload); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit conversion: %w", err)
	}

	return closed, createdAppt, nil
}

func scanTxAppointment(row pgx.Row) (*appointment.Appointment, error) {
	var a appointment.Appointment
	var symptoms, prescription []byte

	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.Status, &a.Type, &a.Amount,
		&a.PaymentStatus, &a.PaymentOrderRef, &a.PaymentRef, &a.PaidAt,
		&symptoms, &prescription, &a.MeetingLink, &a.RatingValue, &a.RatingReview,
		&a.Emergency, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
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
