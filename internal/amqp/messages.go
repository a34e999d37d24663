package amqp

import (
	"encoding/json"
	"time"

	"kharcha/internal/core"
)

// Event kinds carried on the transaction stream.
const (
	EventTransactionRecorded = "transaction.recorded"
	EventTransactionReverted = "transaction.reverted"
)

// TransactionEventMessage is a self-contained record of a committed ledger
// mutation. Reverted events describe the deleted row, so consumers never
// need to read it back from the store.
type TransactionEventMessage struct {
	Event        string    `json:"event"`
	TxnID        int64     `json:"txn_id"`
	UserID       int64     `json:"user_id"`
	Type         string    `json:"type"`
	AmountPaise  int64     `json:"amount_paise"`
	Category     string    `json:"category,omitempty"`
	BalancePaise int64     `json:"balance_paise"`
	Date         time.Time `json:"date"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewTransactionEventMessage builds an event from a committed transaction
// and the balance it left behind.
func NewTransactionEventMessage(event string, txn core.Transaction, balance core.Money) *TransactionEventMessage {
	return &TransactionEventMessage{
		Event:        event,
		TxnID:        txn.ID,
		UserID:       txn.UserID,
		Type:         string(txn.Type),
		AmountPaise:  txn.Amount.Paise,
		Category:     txn.CategoryName,
		BalancePaise: balance.Paise,
		Date:         txn.Date,
		Timestamp:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventMessageFromJSON creates a message from JSON bytes.
func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
