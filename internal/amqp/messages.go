package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PageViewMessage carries one page view from the web process to the tracker worker.
type PageViewMessage struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	OccurredAt time.Time `json:"occurred_at"`
}

var errEmptyIdentifier = errors.New("page view identifier is empty")

// NewPageViewMessage stamps identifier with a fresh id and the current time.
func NewPageViewMessage(identifier string) *PageViewMessage {
	return &PageViewMessage{
		ID:         uuid.NewString(),
		Identifier: identifier,
		OccurredAt: time.Now().UTC(),
	}
}

// Path returns the identifier without its query string.
func (m *PageViewMessage) Path() string {
	path, _, _ := strings.Cut(m.Identifier, "?")
	return path
}

// ToJSON converts the message to JSON bytes
func (m *PageViewMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PageViewMessageFromJSON decodes and checks a message body.
func PageViewMessageFromJSON(data []byte) (*PageViewMessage, error) {
	var msg PageViewMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Identifier == "" {
		return nil, errEmptyIdentifier
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return &msg, nil
}
