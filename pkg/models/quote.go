package models

import (
	"encoding/json"
	"time"
)

// DefaultCurrency is the currency every quote is produced in.
const DefaultCurrency = "USD"

// Quote represents a single price observation for a stock symbol.
// Quotes are immutable once created; the history log only ever appends them.
type Quote struct {
	Symbol        string
	Price         float64
	Timestamp     time.Time
	ChangePercent *float64
	Currency      string
}

// NewQuote creates a Quote for symbol at the current time, priced in USD.
func NewQuote(symbol string, price float64) Quote {
	return Quote{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
		Currency:  DefaultCurrency,
	}
}

// quoteWire is the JSON form: timestamps travel as integer milliseconds
// since epoch, change_percent is omitted when absent.
type quoteWire struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	Timestamp     int64    `json:"timestamp"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	Currency      string   `json:"currency"`
}

func (q Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(quoteWire{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Timestamp:     q.Timestamp.UnixMilli(),
		ChangePercent: q.ChangePercent,
		Currency:      q.Currency,
	})
}

func (q *Quote) UnmarshalJSON(data []byte) error {
	var w quoteWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	q.Symbol = w.Symbol
	q.Price = w.Price
	q.Timestamp = time.UnixMilli(w.Timestamp).UTC()
	q.ChangePercent = w.ChangePercent
	q.Currency = w.Currency
	if q.Currency == "" {
		q.Currency = DefaultCurrency
	}
	return nil
}
