package emergency

import (
	"time"

	"github.com/google/uuid"
)

type EmergencyStatus string

const (
	StatusRaised EmergencyStatus = "raised"
	StatusClosed EmergencyStatus = "closed"
)

// Emergency is an SOS request waiting for a doctor. It is converted into a
// confirmed appointment exactly once and then closed.
type Emergency struct {
	ID            uuid.UUID
	RequesterID   uuid.UUID
	Phone         string
	Latitude      float64
	Longitude     float64
	Status        EmergencyStatus
	AppointmentID *uuid.UUID
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e *Emergency) IsActive() bool {
	return e.Status == StatusRaised
}

func (e *Emergency) IsCompleted() bool {
	return e.Status == StatusClosed && e.AppointmentID != nil
}
