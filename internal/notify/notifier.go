// Package notify sends operator notifications about committed ledger events
// to chat channels (Telegram, Discord). Event types can be filtered so
// operators receive only the alerts they care about.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Only events whose type is in the
// allowed set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish implements domain.EventPublisher.
func (n *Notifier) Publish(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		return nil
	}
	title, message, err := format(ev)
	if err != nil {
		return err
	}
	return n.dispatch(ctx, title, message)
}

func format(ev domain.Event) (title, message string, err error) {
	switch ev.Type {
	case domain.EventBidAccepted:
		var b domain.Bid
		if err := json.Unmarshal(ev.Payload, &b); err != nil {
			return "", "", fmt.Errorf("notify: decode %s: %w", ev.Type, err)
		}
		message = fmt.Sprintf("%s now owns auction %s at %s", b.Bidder, ev.Aggregate, b.Amount)
		if b.Taunt != "" {
			message += fmt.Sprintf("\n\"%s\"", b.Taunt)
		}
		return "New highest bid", message, nil

	case domain.EventMarketDistributed:
		var r domain.DistributionResult
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return "", "", fmt.Errorf("notify: decode %s: %w", ev.Type, err)
		}
		winners := 0
		for _, rec := range r.Distributions {
			if !rec.IsFee() {
				winners++
			}
		}
		return "Market settled", fmt.Sprintf("Market %s settled %s: %d winning bets, losing pool %s, platform fee %s",
			r.MarketID, r.WinningOutcome, winners, r.LosingPool, r.PlatformFee), nil

	case domain.EventBetPlaced:
		var b domain.Bet
		if err := json.Unmarshal(ev.Payload, &b); err != nil {
			return "", "", fmt.Errorf("notify: decode %s: %w", ev.Type, err)
		}
		return "Bet placed", fmt.Sprintf("%s bet %s on %s in market %s",
			b.WalletAddress, b.Amount, b.Direction, b.MarketID), nil
	}
	return ev.Type, string(ev.Payload), nil
}

// dispatch sends to every sender. A failing sender does not stop delivery
// to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("notify: %s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
