package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// ReceiptPublisher writes a settlement receipt to settlements/<market>.json
// for every market_distributed event. An existing receipt is never
// overwritten. Other event types are ignored.
type ReceiptPublisher struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewReceiptPublisher creates a ReceiptPublisher.
func NewReceiptPublisher(writer domain.BlobWriter, reader domain.BlobReader) *ReceiptPublisher {
	return &ReceiptPublisher{writer: writer, reader: reader}
}

// ReceiptPath returns the object key of a market's settlement receipt.
func ReceiptPath(marketID string) string {
	return "settlements/" + marketID + ".json"
}

// Publish implements domain.EventPublisher.
func (p *ReceiptPublisher) Publish(ctx context.Context, ev domain.Event) error {
	if ev.Type != domain.EventMarketDistributed {
		return nil
	}
	path := ReceiptPath(ev.Aggregate)

	exists, err := p.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: receipt %s: %w", ev.Aggregate, err)
	}
	if exists {
		return nil
	}
	if err := p.writer.Put(ctx, path, bytes.NewReader(ev.Payload), "application/json"); err != nil {
		return fmt.Errorf("s3blob: receipt %s: %w", ev.Aggregate, err)
	}
	return nil
}
