// ratesim is a stand-in rate service for local development. It answers
// conversion requests with static USD rates over the exchange socket the
// daemon's converter dials.
package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/config"
	"github.com/Phil1999/TickrShell-Common/pkg/transport"
)

// Static rates from USD. Unlisted currencies get an error reply.
var rates = map[string]float64{
	"USD": 1.0,
	"EUR": 0.92,
	"GBP": 0.79,
	"JPY": 148.0,
	"CNY": 7.1,
	"KRW": 1330.0,
	"INR": 83.0,
	"CAD": 1.36,
	"AUD": 1.52,
	"CHF": 0.88,
	"HKD": 7.8,
	"SGD": 1.34,
}

type convertRequest struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from_currency"`
	To     string  `json:"to_currency"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger, err := config.NewLogger(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rep := transport.NewRepSocket(logger)
	if err := rep.Bind(cfg.Currency.Endpoint); err != nil {
		logger.Fatal("Failed to bind rate socket", zap.Error(err))
	}
	defer rep.Close()
	rep.SetRecvTimeout(250 * time.Millisecond)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("Rate simulator started", zap.String("endpoint", cfg.Currency.Endpoint))
	for {
		select {
		case <-stop:
			logger.Info("Shutdown Complete")
			return
		default:
		}

		frame, err := rep.Recv(false)
		if err != nil {
			logger.Error("Receive failed", zap.Error(err))
			return
		}
		if frame == nil {
			continue
		}

		reply := handle(logger, frame)
		if err := rep.Send(reply); err != nil {
			logger.Error("Reply failed", zap.Error(err))
		}
	}
}

func handle(logger *zap.Logger, frame []byte) []byte {
	var req convertRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		logger.Warn("Malformed request", zap.Error(err))
		return errorReply("malformed request")
	}

	rate, ok := rates[req.To]
	if !ok || req.From != "USD" {
		logger.Warn("Unsupported conversion",
			zap.String("from", req.From),
			zap.String("to", req.To))
		return errorReply("rate unavailable")
	}

	converted := req.Amount * rate
	logger.Debug("Converted",
		zap.Float64("amount", req.Amount),
		zap.String("to", req.To),
		zap.Float64("result", converted))

	reply, _ := json.Marshal(map[string]float64{"converted_amount": converted})
	return reply
}

func errorReply(msg string) []byte {
	reply, _ := json.Marshal(map[string]string{"error": msg})
	return reply
}
