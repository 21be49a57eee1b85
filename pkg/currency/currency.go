// Package currency converts USD amounts into a display currency through
// the remote rate service, and owns the static currency/symbol table.
package currency

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/transport"
)

var (
	// ErrInvalidCurrencyCode is returned before any request is sent.
	ErrInvalidCurrencyCode = errors.New("invalid currency code")
	// ErrTimeout means the rate service did not answer within the deadline.
	ErrTimeout = errors.New("currency service timed out")
	// ErrRemote means the rate service answered with an error payload.
	ErrRemote = errors.New("currency service reported an error")
	// ErrInvalidResponse means the reply was missing converted_amount or
	// did not parse at all.
	ErrInvalidResponse = errors.New("invalid currency service response")
)

const (
	// DefaultEndpoint is the rate service's well-known local endpoint.
	DefaultEndpoint = "tcp://127.0.0.1:5555"
	// DefaultTimeout bounds every conversion exchange.
	DefaultTimeout = 2000 * time.Millisecond

	baseCurrency = "USD"
)

// currencySymbols is the fixed code-to-display-symbol table. It is never
// mutated at runtime.
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"INR": "₹",
	"CAD": "C$",
	"AUD": "A$",
	"CHF": "₣",
	"HKD": "HK$",
	"SGD": "S$",
}

// IsValidCode reports whether code is one of the supported currencies.
func IsValidCode(code string) bool {
	_, ok := currencySymbols[code]
	return ok
}

// Symbol returns the display symbol for code, or the code itself when it
// has no mapping.
func Symbol(code string) string {
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	return code
}

type convertRequest struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from_currency"`
	To     string  `json:"to_currency"`
}

type convertResponse struct {
	ConvertedAmount *float64 `json:"converted_amount"`
	Error           *string  `json:"error"`
}

// Converter talks to the remote rate service over one long-lived request
// connection reused across calls. Convert is synchronous; the receive
// timeout is its only cancellation mechanism.
type Converter struct {
	sock    *transport.ReqSocket
	logger  *zap.Logger
	Timeout time.Duration
}

// NewConverter connects to the rate service at endpoint (DefaultEndpoint
// when empty).
func NewConverter(endpoint string, logger *zap.Logger) (*Converter, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	sock := transport.NewReqSocket(logger)
	if err := sock.Connect(endpoint); err != nil {
		return nil, err
	}
	logger.Info("currency converter connected", zap.String("endpoint", endpoint))
	return &Converter{sock: sock, logger: logger, Timeout: DefaultTimeout}, nil
}

// Convert turns a USD amount into toCurrency. The code is validated
// locally first, so an invalid code never costs a network round trip.
func (c *Converter) Convert(amount float64, toCurrency string) (float64, error) {
	if !IsValidCode(toCurrency) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCurrencyCode, toCurrency)
	}

	frame, err := json.Marshal(convertRequest{Amount: amount, From: baseCurrency, To: toCurrency})
	if err != nil {
		return 0, fmt.Errorf("%w: marshal request: %v", ErrInvalidResponse, err)
	}

	c.logger.Debug("requesting conversion",
		zap.Float64("amount", amount),
		zap.String("to", toCurrency))

	if err := c.sock.Send(frame); err != nil {
		return 0, err
	}

	c.sock.SetRecvTimeout(c.Timeout)
	reply, err := c.sock.Recv(false)
	if err != nil {
		return 0, err
	}
	if reply == nil {
		return 0, fmt.Errorf("%w after %s", ErrTimeout, c.Timeout)
	}

	var resp convertResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("%w: %s", ErrRemote, *resp.Error)
	}
	if resp.ConvertedAmount == nil {
		return 0, fmt.Errorf("%w: missing converted_amount", ErrInvalidResponse)
	}
	return *resp.ConvertedAmount, nil
}

func (c *Converter) Close() error {
	return c.sock.Close()
}
