package appointment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// MeetingLink derives the video room URL for an appointment. The token is a
// hash of the appointment id, so recomputing the link for the same id always
// yields the same URL.
func MeetingLink(baseURL string, id uuid.UUID) string {
	sum := sha256.Sum256(id[:])
	token := hex.EncodeToString(sum[:])[:16]
	return fmt.Sprintf("%s/room/%s", baseURL, token)
}
