package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/ledgerd/internal/domain"
)

// multipartThreshold is the batch size above which archives are uploaded in
// parts.
const multipartThreshold = minPartSize

// BidArchiver stores bids pruned from auction history as JSONL objects:
//
//	archive/bids/<auction>/2025-01/<unix millis>-<first bid id>.jsonl
//
// It implements domain.BidArchive and domain.BidArchiveReader.
type BidArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	now    func() time.Time
}

// NewBidArchiver creates a BidArchiver. reader may be nil when listing is
// not needed.
func NewBidArchiver(writer domain.BlobWriter, reader domain.BlobReader) *BidArchiver {
	return &BidArchiver{writer: writer, reader: reader, now: time.Now}
}

func bidPrefix(auctionID string) string {
	return fmt.Sprintf("archive/bids/%s/", auctionID)
}

// Archive implements domain.BidArchive.
func (a *BidArchiver) Archive(ctx context.Context, auctionID string, bids []domain.Bid) error {
	if len(bids) == 0 {
		return nil
	}
	now := a.now().UTC()

	records := make([]domain.ArchivedBid, len(bids))
	for i, b := range bids {
		records[i] = domain.ArchivedBid{AuctionID: auctionID, Bid: b, ArchivedAt: now}
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive bids marshal: %w", err)
	}

	path := fmt.Sprintf("%s%s/%d-%s.jsonl", bidPrefix(auctionID), now.Format("2006-01"), now.UnixMilli(), bids[0].ID)
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive bids upload: %w", err)
	}
	return nil
}

// ListArchived implements domain.BidArchiveReader. Bids are returned newest
// first; Since and Until filter on the bid timestamp.
func (a *BidArchiver) ListArchived(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.ArchivedBid, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: bid archive is write-only")
	}
	objects, err := a.reader.List(ctx, bidPrefix(auctionID))
	if err != nil {
		return nil, err
	}

	var out []domain.ArchivedBid
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Path, ".jsonl") {
			continue
		}
		recs, err := a.readObject(ctx, obj.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if opts.Since != nil && r.Bid.Timestamp.Before(*opts.Since) {
				continue
			}
			if opts.Until != nil && r.Bid.Timestamp.After(*opts.Until) {
				continue
			}
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Bid.Timestamp.After(out[j].Bid.Timestamp)
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// FindBySignature implements domain.BidArchiveReader by scanning every
// archived batch of the auction.
func (a *BidArchiver) FindBySignature(ctx context.Context, auctionID, signature string) (domain.ArchivedBid, bool, error) {
	if a.reader == nil {
		return domain.ArchivedBid{}, false, fmt.Errorf("s3blob: bid archive is write-only")
	}
	objects, err := a.reader.List(ctx, bidPrefix(auctionID))
	if err != nil {
		return domain.ArchivedBid{}, false, err
	}
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Path, ".jsonl") {
			continue
		}
		recs, err := a.readObject(ctx, obj.Path)
		if err != nil {
			return domain.ArchivedBid{}, false, err
		}
		for _, r := range recs {
			if r.Bid.TransactionSignature == signature {
				return r, true, nil
			}
		}
	}
	return domain.ArchivedBid{}, false, nil
}

func (a *BidArchiver) readObject(ctx context.Context, path string) ([]domain.ArchivedBid, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out []domain.ArchivedBid
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r domain.ArchivedBid
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("s3blob: decode %s: %w", path, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	return out, nil
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
