package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/emergency"
)

func raiseEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RaiseEmergencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		em, err := svc.Raise(r.Context(), emergency.RaiseParams{
			RequesterID: requesterID,
			Phone:       req.Phone,
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
		})
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEmergencyResponse(em))
	}
}

func listEmergenciesHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		items, err := svc.ListActive(r.Context(), limit)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		resp := make([]EmergencyResponse, 0, len(items))
		for i := range items {
			resp = append(resp, toEmergencyResponse(&items[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_emergency_id", "id must be a valid UUID")
			return
		}

		em, err := svc.GetEmergency(r.Context(), id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEmergencyResponse(em))
	}
}

func matchEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_emergency_id", "id must be a valid UUID")
			return
		}

		var req MatchEmergencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		em, appt, err := svc.Match(r.Context(), id, doctorID)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MatchEmergencyResponse{
			Emergency:   toEmergencyResponse(em),
			Appointment: toAppointmentResponse(appt),
		})
	}
}

func handleEmergencyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emergency.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, "invalid_phone", err.Error())
	case errors.Is(err, emergency.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, "invalid_location", err.Error())
	case errors.Is(err, emergency.ErrEmergencyNotFound):
		writeError(w, http.StatusNotFound, "emergency_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, emergency.ErrAlreadyMatched):
		writeError(w, http.StatusConflict, "already_matched", err.Error())
	case errors.Is(err, emergency.ErrEmergencyBeingMatched):
		writeError(w, http.StatusConflict, "emergency_being_matched", "emergency is currently being matched, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
