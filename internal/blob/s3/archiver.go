package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantish/rangemaker/internal/domain"
)

// Archiver exports the trade ledger to object storage as newline-delimited
// JSON, one object per UTC day:
//
//	ledger/trades/2026-08-25.jsonl
//
// Deletion of exported rows from the primary store is intentionally not
// performed here; the export must be verified first.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver. The audit store may be nil.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay exports every trade executed on the given UTC day and uploads
// the JSONL object. It returns the number of exported records; zero records
// means no upload.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	trades, err := a.trades.ListSince(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}

	var dayTrades []domain.Trade
	for _, t := range trades {
		if t.ExecutedAt.Before(end) {
			dayTrades = append(dayTrades, t)
		}
	}
	if len(dayTrades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(dayTrades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	key := fmt.Sprintf("ledger/trades/%s.jsonl", start.Format("2006-01-02"))
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(dayTrades))
	a.logger.InfoContext(ctx, "s3blob: trade ledger archived",
		slog.String("key", key),
		slog.Int64("count", count),
	)

	if a.audit != nil {
		if err := a.audit.Log(ctx, "ledger_archived", map[string]any{
			"key":   key,
			"count": count,
			"day":   start.Format("2006-01-02"),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}

	return count, nil
}

// Run archives the previous UTC day once per day until the context ends.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	var lastDone string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			yesterday := now.UTC().Add(-24 * time.Hour)
			tag := yesterday.Format("2006-01-02")
			if tag == lastDone {
				continue
			}
			if _, err := a.ArchiveDay(ctx, yesterday); err != nil {
				a.logger.Error("s3blob: daily archive failed",
					slog.String("day", tag),
					slog.String("error", err.Error()),
				)
				continue
			}
			lastDone = tag
		}
	}
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
