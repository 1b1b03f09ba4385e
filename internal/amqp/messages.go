package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeOp is the kind of write a ChangeMessage announces.
type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpUpdated ChangeOp = "updated"
	OpDeleted ChangeOp = "deleted"
)

// ChangeMessage announces that a record of a collection changed.
// It carries only identifiers; listeners re-read the collection.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	Op         ChangeOp  `json:"op"`
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewChangeMessage creates a change message stamped with the current time.
func NewChangeMessage(collection string, op ChangeOp, id string) *ChangeMessage {
	return &ChangeMessage{
		Collection: collection,
		Op:         op,
		ID:         id,
		Timestamp:  time.Now(),
	}
}

// RoutingKey is <collection>.<op>.
func (m *ChangeMessage) RoutingKey() string {
	return fmt.Sprintf("%s.%s", m.Collection, m.Op)
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" {
		return nil, fmt.Errorf("change message without collection")
	}
	return &msg, nil
}
