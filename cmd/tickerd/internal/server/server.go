// Package server implements the daemon core: ticks flow in from the feed
// and fan out to subscribers, while client requests are served over the
// exchange socket one at a time.
package server

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/currency"
	"github.com/Phil1999/TickrShell-Common/pkg/models"
	"github.com/Phil1999/TickrShell-Common/pkg/protocol"
)

// historyLimit caps how many records a price history reply carries.
const historyLimit = 5

type Server struct {
	logger    *zap.Logger
	store     QuoteStore
	cache     LatestCache
	publisher Publisher
	responder Responder
	converter Converter

	mu              sync.Mutex
	displayCurrency string
}

func New(
	logger *zap.Logger,
	store QuoteStore,
	cache LatestCache,
	publisher Publisher,
	responder Responder,
	converter Converter,
) *Server {
	return &Server{
		logger:          logger,
		store:           store,
		cache:           cache,
		publisher:       publisher,
		responder:       responder,
		converter:       converter,
		displayCurrency: models.DefaultCurrency,
	}
}

// DisplayCurrency returns the currency quotes are currently published in.
func (s *Server) DisplayCurrency() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayCurrency
}

// displayQuote converts a USD quote into the display currency. Conversion
// failures fall back to the USD quote so the stream never stalls on the
// rate service.
func (s *Server) displayQuote(q models.Quote) models.Quote {
	target := s.DisplayCurrency()
	if target == models.DefaultCurrency {
		return q
	}
	converted, err := s.converter.Convert(q.Price, target)
	if err != nil {
		s.logger.Warn("conversion failed, publishing in USD",
			zap.String("symbol", q.Symbol),
			zap.String("currency", target),
			zap.Error(err))
		return q
	}
	q.Price = converted
	q.Currency = target
	return q
}

// HandleTick persists a feed tick, refreshes the snapshot cache, and
// broadcasts it to subscribers. Persistence failures are logged but never
// block the broadcast.
func (s *Server) HandleTick(ctx context.Context, q models.Quote) {
	if err := s.store.SavePrice(q); err != nil {
		s.logger.Error("failed to persist tick", zap.String("symbol", q.Symbol), zap.Error(err))
	}
	if err := s.cache.SetLatest(ctx, q); err != nil {
		s.logger.Error("failed to cache tick", zap.String("symbol", q.Symbol), zap.Error(err))
	}
	if err := s.publisher.Send(protocol.NewQuoteUpdate(s.displayQuote(q))); err != nil {
		s.logger.Error("failed to broadcast tick", zap.String("symbol", q.Symbol), zap.Error(err))
	}
}

// HandleRequest maps one client request to its reply. Every request gets
// exactly one reply; failures come back as error envelopes rather than
// silence, because the requester is blocked waiting.
func (s *Server) HandleRequest(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	switch req.Type {
	case protocol.IntentSubscribe:
		if err := s.store.SaveSubscription(req.Symbol); err != nil {
			s.logger.Error("subscribe failed", zap.String("symbol", req.Symbol), zap.Error(err))
			return protocol.NewError(fmt.Sprintf("failed to subscribe to %s", req.Symbol))
		}
		return s.subscriptionsReply()

	case protocol.IntentUnsubscribe:
		if err := s.store.RemoveSubscription(req.Symbol); err != nil {
			s.logger.Error("unsubscribe failed", zap.String("symbol", req.Symbol), zap.Error(err))
			return protocol.NewError(fmt.Sprintf("failed to unsubscribe from %s", req.Symbol))
		}
		return s.subscriptionsReply()

	case protocol.IntentQuery:
		q, err := s.cache.GetLatest(ctx, req.Symbol)
		if err != nil {
			s.logger.Error("query failed", zap.String("symbol", req.Symbol), zap.Error(err))
			return protocol.NewError(fmt.Sprintf("failed to look up %s", req.Symbol))
		}
		if q == nil {
			return protocol.NewError(fmt.Sprintf("no quote available for %s", req.Symbol))
		}
		return protocol.NewQuoteUpdate(s.displayQuote(*q))

	case protocol.IntentRequestSubscriptions:
		return s.subscriptionsReply()

	case protocol.IntentPriceHistoryRequest:
		history, err := s.store.GetPriceHistory(req.Symbol, historyLimit)
		if err != nil {
			s.logger.Error("history lookup failed", zap.String("symbol", req.Symbol), zap.Error(err))
			return protocol.NewError(fmt.Sprintf("failed to load history for %s", req.Symbol))
		}
		return protocol.NewPriceHistoryResponse(req.Symbol, history)

	case protocol.IntentSetCurrency:
		if !currency.IsValidCode(req.Currency) {
			return protocol.NewError(fmt.Sprintf("unsupported currency %s", req.Currency))
		}
		s.mu.Lock()
		s.displayCurrency = req.Currency
		s.mu.Unlock()
		s.logger.Info("display currency changed", zap.String("currency", req.Currency))
		return protocol.NewSetCurrency(req.Currency)

	default:
		return protocol.NewError(fmt.Sprintf("unsupported request %s", req.Type))
	}
}

// subscriptionsReply builds the canonical reply to any subscription
// mutation or listing.
func (s *Server) subscriptionsReply() protocol.Envelope {
	subs, err := s.store.Subscriptions()
	if err != nil {
		s.logger.Error("subscription listing failed", zap.Error(err))
		return protocol.NewError("failed to list subscriptions")
	}
	return protocol.NewSubscriptionsList(subs)
}

// RunExchange serves the exchange socket until ctx is cancelled. Requests
// are handled strictly one at a time. The underlying socket needs a
// receive timeout set, or cancellation goes unnoticed between requests.
func (s *Server) RunExchange(ctx context.Context) {
	s.logger.Info("exchange loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("exchange loop stopped")
			return
		default:
		}

		req, err := s.responder.Receive(false)
		if err != nil {
			s.logger.Error("exchange receive failed", zap.Error(err))
			return
		}
		if req == nil {
			continue
		}

		reply := s.HandleRequest(ctx, *req)
		if err := s.responder.Send(reply); err != nil {
			s.logger.Error("exchange reply failed", zap.Error(err))
		}
	}
}
