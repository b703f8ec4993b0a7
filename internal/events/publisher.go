// Package events fans committed ledger events out to live subscribers and
// downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// Pub/sub channels carrying live updates.
const (
	ChannelAuction = "ch:auction"
	ChannelMarket  = "ch:market"
)

// ChannelFor returns the pub/sub channel an event type is published on.
func ChannelFor(eventType string) string {
	if eventType == domain.EventBidAccepted {
		return ChannelAuction
	}
	return ChannelMarket
}

// BusPublisher publishes events on the SignalBus so WebSocket clients on
// any instance receive them.
type BusPublisher struct {
	bus domain.SignalBus
}

// NewBusPublisher creates a BusPublisher.
func NewBusPublisher(bus domain.SignalBus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

// Publish implements domain.EventPublisher.
func (p *BusPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	if err := p.bus.Publish(ctx, ChannelFor(ev.Type), payload); err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}
	return nil
}

// Fanout delivers each event to every publisher, even when some fail.
type Fanout []domain.EventPublisher

// Publish implements domain.EventPublisher. The returned error joins every
// publisher failure.
func (f Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
