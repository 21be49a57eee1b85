package protocol_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
	"github.com/Phil1999/TickrShell-Common/pkg/protocol"
)

func sampleQuote(symbol string, price float64) models.Quote {
	change := 0.5
	return models.Quote{
		Symbol:        symbol,
		Price:         price,
		Timestamp:     time.UnixMilli(1700000000123).UTC(),
		ChangePercent: &change,
		Currency:      "USD",
	}
}

func roundTrip(t *testing.T, e protocol.Envelope) protocol.Envelope {
	t.Helper()
	data, err := protocol.Marshal(e)
	require.NoError(t, err)
	got, err := protocol.Unmarshal(data)
	require.NoError(t, err)
	return got
}

func TestEnvelope_RoundTrip_AllIntents(t *testing.T) {
	history := []models.Quote{sampleQuote("AAPL", 151), sampleQuote("AAPL", 150)}

	envelopes := []protocol.Envelope{
		protocol.NewSubscribe("AAPL"),
		protocol.NewUnsubscribe("AAPL"),
		protocol.NewQuery("TSLA"),
		protocol.NewQuoteUpdate(sampleQuote("AAPL", 150.0)),
		protocol.NewSubscriptionsList([]string{"AAPL", "GOOG", "TSLA"}),
		protocol.NewRequestSubscriptions(),
		protocol.NewPriceHistoryRequest("AAPL"),
		protocol.NewPriceHistoryResponse("AAPL", history),
		protocol.NewSetCurrency("EUR"),
		protocol.NewError("something broke"),
	}

	for _, e := range envelopes {
		t.Run(string(e.Type), func(t *testing.T) {
			got := roundTrip(t, e)
			require.Equal(t, e, got)
		})
	}
}

func TestEnvelope_FactoriesSetOnlyRelevantSlots(t *testing.T) {
	e := protocol.NewQuoteUpdate(sampleQuote("AAPL", 150))
	require.Equal(t, "AAPL", e.Symbol)
	require.NotNil(t, e.Quote)
	require.Nil(t, e.Error)
	require.Nil(t, e.Subscriptions)
	require.Nil(t, e.PriceHistory)
	require.Empty(t, e.Currency)

	e = protocol.NewSetCurrency("JPY")
	require.Equal(t, "JPY", e.Currency)
	require.Empty(t, e.Symbol)
	require.Nil(t, e.Quote)

	e = protocol.NewError("boom")
	require.NotNil(t, e.Error)
	require.Equal(t, "boom", *e.Error)
	require.Empty(t, e.Symbol)
}

func TestEnvelope_SubscriptionOrderPreserved(t *testing.T) {
	subs := []string{"AAPL", "AMZN", "GOOG", "TSLA"}
	got := roundTrip(t, protocol.NewSubscriptionsList(subs))
	require.Equal(t, subs, got.Subscriptions)
}

func TestEnvelope_HistoryOrderPreserved(t *testing.T) {
	history := []models.Quote{
		sampleQuote("AAPL", 153),
		sampleQuote("AAPL", 152),
		sampleQuote("AAPL", 151),
	}
	got := roundTrip(t, protocol.NewPriceHistoryResponse("AAPL", history))
	require.Equal(t, history, got.PriceHistory)
}

// An empty list is indistinguishable from an absent one on the wire: both
// decode to nil. Receivers must treat nil and empty lists the same.
func TestEnvelope_EmptyListCollapsesToAbsent(t *testing.T) {
	got := roundTrip(t, protocol.NewSubscriptionsList([]string{}))
	require.Nil(t, got.Subscriptions)

	got = roundTrip(t, protocol.NewPriceHistoryResponse("AAPL", []models.Quote{}))
	require.Nil(t, got.PriceHistory)
}

func TestUnmarshal_UnknownIntent(t *testing.T) {
	_, err := protocol.Unmarshal([]byte(`{"type":"teleport","symbol":"AAPL"}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, protocol.ErrMalformedEnvelope))
}

func TestUnmarshal_BadJSON(t *testing.T) {
	_, err := protocol.Unmarshal([]byte(`{"type":"subscribe",`))
	require.Error(t, err)
	require.True(t, errors.Is(err, protocol.ErrMalformedEnvelope))
}

func TestUnmarshal_StructurallyBadPayload(t *testing.T) {
	_, err := protocol.Unmarshal([]byte(`{"type":"quote_update","symbol":"AAPL","quote":"not-an-object"}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, protocol.ErrMalformedEnvelope))
}
