package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

// ErrMalformedEnvelope reports bytes that could not be decoded into a valid
// Envelope. Transports drop such frames and log them; they never crash.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Intent discriminates the ten envelope variants on the wire.
type Intent string

const (
	IntentSubscribe            Intent = "subscribe"
	IntentUnsubscribe          Intent = "unsubscribe"
	IntentQuery                Intent = "query"
	IntentQuoteUpdate          Intent = "quote_update"
	IntentSubscriptionsList    Intent = "subscriptions_list"
	IntentRequestSubscriptions Intent = "request_subscriptions"
	IntentPriceHistoryRequest  Intent = "price_history_request"
	IntentPriceHistoryResponse Intent = "price_history_response"
	IntentSetCurrency          Intent = "set_currency"
	IntentError                Intent = "error"
)

var validIntents = map[Intent]bool{
	IntentSubscribe:            true,
	IntentUnsubscribe:          true,
	IntentQuery:                true,
	IntentQuoteUpdate:          true,
	IntentSubscriptionsList:    true,
	IntentRequestSubscriptions: true,
	IntentPriceHistoryRequest:  true,
	IntentPriceHistoryResponse: true,
	IntentSetCurrency:          true,
	IntentError:                true,
}

// Envelope is the single wire message exchanged between TickrShell services.
// The payload slots are optional; the constructors below set only the slots
// their intent needs. Decoding does not reject envelopes with extra slots
// populated, to stay wire-compatible with peers that are looser about it.
type Envelope struct {
	Type          Intent         `json:"type"`
	Symbol        string         `json:"symbol"`
	Quote         *models.Quote  `json:"quote,omitempty"`
	Error         *string        `json:"error,omitempty"`
	Subscriptions []string       `json:"subscriptions,omitempty"`
	PriceHistory  []models.Quote `json:"priceHistory,omitempty"`
	Currency      string         `json:"currency,omitempty"`
}

func NewSubscribe(symbol string) Envelope {
	return Envelope{Type: IntentSubscribe, Symbol: symbol}
}

func NewUnsubscribe(symbol string) Envelope {
	return Envelope{Type: IntentUnsubscribe, Symbol: symbol}
}

func NewQuery(symbol string) Envelope {
	return Envelope{Type: IntentQuery, Symbol: symbol}
}

func NewQuoteUpdate(quote models.Quote) Envelope {
	return Envelope{Type: IntentQuoteUpdate, Symbol: quote.Symbol, Quote: &quote}
}

func NewRequestSubscriptions() Envelope {
	return Envelope{Type: IntentRequestSubscriptions}
}

// NewSubscriptionsList carries the full subscription set, sorted by symbol.
func NewSubscriptionsList(subscriptions []string) Envelope {
	return Envelope{Type: IntentSubscriptionsList, Subscriptions: subscriptions}
}

func NewPriceHistoryRequest(symbol string) Envelope {
	return Envelope{Type: IntentPriceHistoryRequest, Symbol: symbol}
}

// NewPriceHistoryResponse carries history in descending timestamp order.
func NewPriceHistoryResponse(symbol string, history []models.Quote) Envelope {
	return Envelope{Type: IntentPriceHistoryResponse, Symbol: symbol, PriceHistory: history}
}

func NewSetCurrency(code string) Envelope {
	return Envelope{Type: IntentSetCurrency, Currency: code}
}

func NewError(message string) Envelope {
	return Envelope{Type: IntentError, Error: &message}
}

// Marshal serializes an envelope to its wire form.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes wire bytes into an Envelope. Unknown intents and
// structurally bad payloads fail with ErrMalformedEnvelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !validIntents[e.Type] {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEnvelope, e.Type)
	}
	return e, nil
}
