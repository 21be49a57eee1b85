package currency_test

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/currency"
	"github.com/Phil1999/TickrShell-Common/pkg/transport"
)

// rateResponder is a scripted stand-in for the rate service. It answers
// every request with the same canned reply and counts requests seen.
type rateResponder struct {
	sock     *transport.RepSocket
	requests atomic.Int64
}

func startResponder(t *testing.T, reply string) *rateResponder {
	t.Helper()
	rep := transport.NewRepSocket(zap.NewNop())
	if err := rep.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind responder: %v", err)
	}
	t.Cleanup(func() { rep.Close() })

	r := &rateResponder{sock: rep}
	go func() {
		rep.SetRecvTimeout(200 * time.Millisecond)
		for {
			frame, err := rep.Recv(false)
			if err != nil {
				return
			}
			if frame == nil {
				continue
			}
			r.requests.Add(1)
			if reply != "" {
				rep.Send([]byte(reply))
			}
		}
	}()
	return r
}

func newConverter(t *testing.T, addr string) *currency.Converter {
	t.Helper()
	conv, err := currency.NewConverter("tcp://"+addr, zap.NewNop())
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	t.Cleanup(func() { conv.Close() })
	return conv
}

func TestIsValidCode_ExactMembership(t *testing.T) {
	supported := []string{"USD", "EUR", "GBP", "JPY", "CNY", "KRW", "INR", "CAD", "AUD", "CHF", "HKD", "SGD"}
	for _, code := range supported {
		if !currency.IsValidCode(code) {
			t.Errorf("%s should be supported", code)
		}
	}
	for _, code := range []string{"usd", "BTC", "XYZ", ""} {
		if currency.IsValidCode(code) {
			t.Errorf("%s should not be supported", code)
		}
	}
}

func TestSymbol_KnownAndFallback(t *testing.T) {
	if got := currency.Symbol("EUR"); got != "€" {
		t.Errorf("EUR symbol = %q", got)
	}
	if got := currency.Symbol("KRW"); got != "₩" {
		t.Errorf("KRW symbol = %q", got)
	}
	// Unknown codes fall back to the code itself.
	if got := currency.Symbol("XYZ"); got != "XYZ" {
		t.Errorf("unknown code should echo, got %q", got)
	}
}

func TestConvert_Success(t *testing.T) {
	resp := startResponder(t, `{"converted_amount": 92.5}`)
	conv := newConverter(t, resp.sock.Addr())

	got, err := conv.Convert(100.0, "EUR")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != 92.5 {
		t.Errorf("expected 92.5, got %v", got)
	}
}

func TestConvert_SendsExpectedRequest(t *testing.T) {
	rep := transport.NewRepSocket(zap.NewNop())
	if err := rep.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind responder: %v", err)
	}
	t.Cleanup(func() { rep.Close() })

	captured := make(chan []byte, 1)
	go func() {
		rep.SetRecvTimeout(2 * time.Second)
		frame, err := rep.Recv(false)
		if err != nil || frame == nil {
			return
		}
		captured <- frame
		rep.Send([]byte(`{"converted_amount": 1.0}`))
	}()

	conv := newConverter(t, rep.Addr())
	if _, err := conv.Convert(100.0, "JPY"); err != nil {
		t.Fatalf("convert: %v", err)
	}

	var req struct {
		Amount float64 `json:"amount"`
		From   string  `json:"from_currency"`
		To     string  `json:"to_currency"`
	}
	select {
	case frame := <-captured:
		if err := json.Unmarshal(frame, &req); err != nil {
			t.Fatalf("request not json: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("responder never saw the request")
	}
	if req.Amount != 100.0 || req.From != "USD" || req.To != "JPY" {
		t.Errorf("unexpected request payload: %+v", req)
	}
}

func TestConvert_InvalidCodeSkipsNetwork(t *testing.T) {
	resp := startResponder(t, `{"converted_amount": 1.0}`)
	conv := newConverter(t, resp.sock.Addr())

	_, err := conv.Convert(100.0, "BTC")
	if !errors.Is(err, currency.ErrInvalidCurrencyCode) {
		t.Fatalf("expected ErrInvalidCurrencyCode, got %v", err)
	}
	// Give any stray request time to land before asserting none did.
	time.Sleep(50 * time.Millisecond)
	if n := resp.requests.Load(); n != 0 {
		t.Errorf("invalid code must not reach the wire, saw %d requests", n)
	}
}

func TestConvert_RemoteError(t *testing.T) {
	resp := startResponder(t, `{"error": "rate unavailable"}`)
	conv := newConverter(t, resp.sock.Addr())

	_, err := conv.Convert(100.0, "EUR")
	if !errors.Is(err, currency.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestConvert_InvalidResponse(t *testing.T) {
	for name, reply := range map[string]string{
		"not json":      `{broken`,
		"missing field": `{"rate": 0.925}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := startResponder(t, reply)
			conv := newConverter(t, resp.sock.Addr())

			_, err := conv.Convert(100.0, "EUR")
			if !errors.Is(err, currency.ErrInvalidResponse) {
				t.Fatalf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

func TestConvert_Timeout(t *testing.T) {
	// Responder that reads requests but never answers.
	resp := startResponder(t, "")
	conv := newConverter(t, resp.sock.Addr())
	conv.Timeout = 100 * time.Millisecond

	_, err := conv.Convert(100.0, "EUR")
	if !errors.Is(err, currency.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// A timed-out exchange must not wedge the converter.
	resp2 := startResponder(t, `{"converted_amount": 5.0}`)
	conv2 := newConverter(t, resp2.sock.Addr())
	got, err := conv2.Convert(10.0, "GBP")
	if err != nil || got != 5.0 {
		t.Errorf("fresh converter after timeout test failed: %v %v", got, err)
	}
}
