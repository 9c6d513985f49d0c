package wizard

import (
	"encoding/json"
	"io"
	"time"

	"github.com/michalholes/audiomason2-sub000/internal/wizarderr"
)

func decodeJSON(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	return dec.Decode(dst)
}

func nowUTC() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func wizardErrSessionNotFound(sessionID string) error {
	return wizarderr.NotFound("session not found: "+sessionID,
		wizarderr.Detail{Path: "$.session_id", Reason: "not_found"})
}

func toASCII(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			b = append(b, byte(r))
		} else {
			b = append(b, '?')
		}
	}
	return string(b)
}
