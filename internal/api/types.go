package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/emergency"
)

type CreateAppointmentRequest struct {
	PatientID   string   `json:"patient_id"`
	DoctorID    string   `json:"doctor_id"`
	ScheduledAt string   `json:"scheduled_at"`
	Type        string   `json:"type,omitempty"`
	Symptoms    []string `json:"symptoms,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type PrescriptionRequest struct {
	Items []appointment.PrescriptionItem `json:"items"`
}

type RecordPaymentRequest struct {
	OrderRef   string `json:"order_ref"`
	PaymentRef string `json:"payment_ref"`
}

type RatingRequest struct {
	Value  int    `json:"value"`
	Review string `json:"review,omitempty"`
}

type RaiseEmergencyRequest struct {
	RequesterID string  `json:"requester_id"`
	Phone       string  `json:"phone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type MatchEmergencyRequest struct {
	DoctorID string `json:"doctor_id"`
}

type PaymentBlock struct {
	Status   string     `json:"status"`
	OrderRef *string    `json:"order_ref,omitempty"`
	Ref      *string    `json:"payment_ref,omitempty"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`
}

type RatingBlock struct {
	Value  int    `json:"value"`
	Review string `json:"review,omitempty"`
}

type AppointmentResponse struct {
	ID           uuid.UUID                      `json:"id"`
	PatientID    uuid.UUID                      `json:"patient_id"`
	DoctorID     uuid.UUID                      `json:"doctor_id"`
	ScheduledAt  time.Time                      `json:"scheduled_at"`
	Status       string                         `json:"status"`
	Type         string                         `json:"type"`
	Amount       int64                          `json:"amount"`
	Payment      PaymentBlock                   `json:"payment"`
	Symptoms     []string                       `json:"symptoms"`
	Prescription []appointment.PrescriptionItem `json:"prescription"`
	MeetingLink  *string                        `json:"meeting_link,omitempty"`
	Rating       *RatingBlock                   `json:"rating,omitempty"`
	Emergency    bool                           `json:"emergency"`
	CreatedAt    time.Time                      `json:"created_at"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		ScheduledAt:  a.ScheduledAt,
		Status:       string(a.Status),
		Type:         string(a.Type),
		Amount:       a.Amount,
		Payment: PaymentBlock{
			Status:   string(a.PaymentStatus),
			OrderRef: a.PaymentOrderRef,
			Ref:      a.PaymentRef,
			PaidAt:   a.PaidAt,
		},
		Symptoms:     a.Symptoms,
		Prescription: a.Prescription,
		MeetingLink:  a.MeetingLink,
		Emergency:    a.Emergency,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}

	if a.RatingValue != nil {
		rating := RatingBlock{Value: *a.RatingValue}
		if a.RatingReview != nil {
			rating.Review = *a.RatingReview
		}
		resp.Rating = &rating
	}

	return resp
}

type PaymentOrderResponse struct {
	OrderRef string `json:"order_ref"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type JoinResponse struct {
	MeetingLink string `json:"meeting_link"`
}

type LocationBlock struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type EmergencyResponse struct {
	ID            uuid.UUID     `json:"id"`
	RequesterID   uuid.UUID     `json:"requester_id"`
	Phone         string        `json:"phone"`
	Location      LocationBlock `json:"location"`
	IsActive      bool          `json:"is_active"`
	IsCompleted   bool          `json:"is_completed"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func toEmergencyResponse(e *emergency.Emergency) EmergencyResponse {
	return EmergencyResponse{
		ID:          e.ID,
		RequesterID: e.RequesterID,
		Phone:       e.Phone,
		Location: LocationBlock{
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
		},
		IsActive:      e.IsActive(),
		IsCompleted:   e.IsCompleted(),
		AppointmentID: e.AppointmentID,
		CreatedAt:     e.CreatedAt,
	}
}

type MatchEmergencyResponse struct {
	Emergency   EmergencyResponse   `json:"emergency"`
	Appointment AppointmentResponse `json:"appointment"`
}
