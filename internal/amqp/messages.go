package amqp

import (
	"encoding/json"
	"time"
)

// ExceededMessage notifies the report worker that a transaction exceeded
// its limit. It carries only the ID; the worker fetches the full row and
// limit info from the database.
type ExceededMessage struct {
	TransactionID int64     `json:"transaction_id"`
	Category      string    `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewExceededMessage(id int64, category string) *ExceededMessage {
	return &ExceededMessage{
		TransactionID: id,
		Category:      category,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExceededMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExceededMessageFromJSON creates a message from JSON bytes
func ExceededMessageFromJSON(data []byte) (*ExceededMessage, error) {
	var msg ExceededMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
