package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/appointment"
)

var errMissingActor = errors.New("actor headers missing or malformed")

// actorFromRequest reads the identity the upstream gateway established.
// Authentication lives at the gateway; only authorization happens here.
func actorFromRequest(r *http.Request) (appointment.Actor, error) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-Id"))
	if err != nil {
		return appointment.Actor{}, errMissingActor
	}

	role := appointment.Role(r.Header.Get("X-Actor-Role"))
	switch role {
	case appointment.RolePatient, appointment.RoleDoctor, appointment.RoleAdmin:
	default:
		return appointment.Actor{}, errMissingActor
	}

	return appointment.Actor{ID: id, Role: role}, nil
}
