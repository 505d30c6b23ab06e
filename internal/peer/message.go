// Package peer carries replication messages between cooperating mapper
// processes over websockets: the master runs a Hub, the others Dial it.
package peer

import (
	"time"

	"github.com/google/uuid"
)

// Message types exchanged between processes.
const (
	TypeBlendingUpdated = "blendingUpdated"
	TypeGeometry        = "geometry"
	TypeBlendingMap     = "blendingMap"
	TypeCalibration     = "calibration"
)

// Message is the JSON envelope of every exchange. Payload is base64 in the
// encoded form.
type Message struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Target  string    `json:"target,omitempty"`
	Payload []byte    `json:"payload,omitempty"`
	From    string    `json:"from,omitempty"`
	Sent    time.Time `json:"sent"`
}

func newMessage(from, typ, target string, payload []byte) Message {
	return Message{
		ID:      uuid.NewString(),
		Type:    typ,
		Target:  target,
		Payload: payload,
		From:    from,
		Sent:    time.Now().UTC(),
	}
}
