package deadletter

import (
	"time"

	"github.com/google/uuid"
)

// Letter is a relayed payload the subscriber could not decode.
type Letter struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Payload   string    `json:"payload"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	bucketKey []byte
}

func (l *Letter) normalize() {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
}
