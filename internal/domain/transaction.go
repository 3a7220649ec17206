// Package domain defines the core interfaces and types for AMLGuard.
package domain

import (
	"time"
)

// Transaction represents an incoming transaction to be classified.
// It is immutable once received; risk assessment results are written
// back through the Repository, never onto this struct.
type Transaction struct {
	ID            string    `json:"transaction_id"`
	CustomerID    string    `json:"customer_id"`
	FromAccountID string    `json:"from_account_id,omitempty"`
	ToAccountID   string    `json:"to_account_id,omitempty"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Type          string    `json:"transaction_type"`
	Description   string    `json:"description,omitempty"`
	Location      *Location `json:"location,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
}

// Location is the optional structured location of a transaction.
type Location struct {
	Country string  `json:"country"`
	City    string  `json:"city,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// Document flattens the transaction into the nested map form the rule
// engine resolves dotted field paths against. Keys match the wire names
// used in rule configurations (e.g. "amount", "location.country").
func (t *Transaction) Document() map[string]any {
	doc := map[string]any{
		"transaction_id":   t.ID,
		"customer_id":      t.CustomerID,
		"from_account_id":  t.FromAccountID,
		"to_account_id":    t.ToAccountID,
		"amount":           t.Amount,
		"currency":         t.Currency,
		"transaction_type": t.Type,
		"description":      t.Description,
		"timestamp":        t.Timestamp.UTC().Format(time.RFC3339),
	}
	if t.Location != nil {
		doc["location"] = map[string]any{
			"country": t.Location.Country,
			"city":    t.Location.City,
			"lat":     t.Location.Lat,
			"lon":     t.Location.Lon,
		}
	}
	return doc
}

// TransactionRequest is the API request payload for transaction ingestion.
type TransactionRequest struct {
	CustomerID    string    `json:"customer_id"`
	FromAccountID string    `json:"from_account_id,omitempty"`
	ToAccountID   string    `json:"to_account_id,omitempty"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Type          string    `json:"transaction_type"`
	Description   string    `json:"description,omitempty"`
	Location      *Location `json:"location,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return &Transaction{
		CustomerID:    r.CustomerID,
		FromAccountID: r.FromAccountID,
		ToAccountID:   r.ToAccountID,
		Amount:        r.Amount,
		Currency:      currency,
		Type:          r.Type,
		Description:   r.Description,
		Location:      r.Location,
		Timestamp:     now,
		CreatedAt:     now,
	}
}
