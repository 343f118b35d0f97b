package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// OccurrenceCreatedMessage announces a newly recorded expense occurrence.
// Only identifiers travel on the wire; the export worker fetches the full
// record from the store, so a stale message never exports stale data.
type OccurrenceCreatedMessage struct {
	ExpenseID string    `json:"expense_id"`
	GroupID   string    `json:"group_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOccurrenceCreatedMessage(expenseID, groupID string) *OccurrenceCreatedMessage {
	return &OccurrenceCreatedMessage{
		ExpenseID: expenseID,
		GroupID:   groupID,
		Timestamp: time.Now(),
	}
}

// ToJSON serializes the message for publishing.
func (m *OccurrenceCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// OccurrenceCreatedMessageFromJSON decodes a consumed delivery body.
func OccurrenceCreatedMessageFromJSON(data []byte) (*OccurrenceCreatedMessage, error) {
	var m OccurrenceCreatedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode occurrence message: %w", err)
	}
	return &m, nil
}
