package amqp

import (
	"encoding/json"
	"time"

	"flowmoney/internal/core"
)

// DataChangedMessage is published after every write that affects a user's
// dashboard. It carries identifiers only; consumers re-read the store.
type DataChangedMessage struct {
	UserID    string          `json:"user_id"`
	Kind      core.ChangeKind `json:"kind"`
	EntityID  string          `json:"entity_id,omitempty"`
	LedgerID  string          `json:"ledger_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewDataChangedMessage builds the wire form of a change.
func NewDataChangedMessage(c core.DataChange) *DataChangedMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &DataChangedMessage{
		UserID:    c.UserID,
		Kind:      c.Kind,
		EntityID:  c.EntityID,
		LedgerID:  c.LedgerID,
		Timestamp: ts,
	}
}

// Change converts the message back to the domain event.
func (m *DataChangedMessage) Change() core.DataChange {
	return core.DataChange{
		UserID:   m.UserID,
		Kind:     m.Kind,
		EntityID: m.EntityID,
		LedgerID: m.LedgerID,
		At:       m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *DataChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DataChangedMessageFromJSON decodes a message, rejecting ones without a user.
func DataChangedMessageFromJSON(data []byte) (*DataChangedMessage, error) {
	var msg DataChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errMissingUser
	}
	return &msg, nil
}
