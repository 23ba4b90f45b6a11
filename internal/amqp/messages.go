package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"spndr/internal/core"
)

// EventType names what happened to the transactions table.
type EventType string

const (
	EventCreated EventType = "transaction.created"
	EventUpdated EventType = "transaction.updated"
	EventDeleted EventType = "transaction.deleted"
	EventCleared EventType = "transactions.cleared"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted, EventCleared:
		return true
	default:
		return false
	}
}

// TransactionEvent is published after every successful write on the API.
// Created and updated events carry the stored record; deletes carry the id;
// clears carry how many rows went.
type TransactionEvent struct {
	Type          EventType         `json:"type"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Transaction   *core.Transaction `json:"transaction,omitempty"`
	Count         int64             `json:"count,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

func NewCreatedEvent(tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{Type: EventCreated, TransactionID: tx.ID, Transaction: &tx, Timestamp: time.Now()}
}

func NewUpdatedEvent(tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{Type: EventUpdated, TransactionID: tx.ID, Transaction: &tx, Timestamp: time.Now()}
}

func NewDeletedEvent(id string) *TransactionEvent {
	return &TransactionEvent{Type: EventDeleted, TransactionID: id, Timestamp: time.Now()}
}

func NewClearedEvent(count int64) *TransactionEvent {
	return &TransactionEvent{Type: EventCleared, Count: count, Timestamp: time.Now()}
}

// ToJSON converts the event to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes an event and rejects unknown types and
// record events without a record.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if (e.Type == EventCreated || e.Type == EventUpdated) && e.Transaction == nil {
		return nil, fmt.Errorf("%s event without transaction", e.Type)
	}
	if e.Type == EventDeleted && e.TransactionID == "" {
		return nil, fmt.Errorf("%s event without transaction id", e.Type)
	}
	return &e, nil
}
