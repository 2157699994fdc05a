package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type AppointmentType string

const (
	TypeOnline  AppointmentType = "online"
	TypeOffline AppointmentType = "offline"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor identifies who is invoking a state change. Identity itself comes from
// the upstream gateway; the service only enforces authorization rules.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	ConsultationFee int64 // currency minor units
	Available       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PrescriptionItem struct {
	Medicine  string `json:"medicine"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Notes     string `json:"notes,omitempty"`
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ScheduledAt     time.Time
	Status          AppointmentStatus
	Type            AppointmentType
	Amount          int64 // currency minor units
	PaymentStatus   PaymentStatus
	PaymentOrderRef *string
	PaymentRef      *string
	PaidAt          *time.Time
	Symptoms        []string
	Prescription    []PrescriptionItem
	MeetingLink     *string
	RatingValue     *int
	RatingReview    *string
	Emergency       bool
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Closed reports whether the appointment is in a terminal state.
func (a *Appointment) Closed() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
