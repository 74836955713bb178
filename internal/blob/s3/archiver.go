package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// archiveBatchSize bounds how many trades one archive pass pulls from the
// store at a time.
const archiveBatchSize = 5000

// TradeArchiver implements domain.Archiver by moving closed trades older
// than the retention window out of Postgres into JSONL objects on S3. Rows
// are deleted only after the upload has succeeded.
type TradeArchiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	audit  domain.AuditStore // optional
	logger *slog.Logger
}

// NewTradeArchiver creates a TradeArchiver. audit may be nil.
func NewTradeArchiver(writer domain.BlobWriter, trades domain.TradeStore, audit domain.AuditStore, logger *slog.Logger) *TradeArchiver {
	return &TradeArchiver{
		writer: writer,
		trades: trades,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*TradeArchiver)(nil)

// ArchiveOldData uploads every trade closed more than retentionDays ago in
// batches, each to its own archive/trades/ object, and removes exactly the
// rows each upload confirmed. A failed upload or delete stops the pass and
// leaves the remaining backlog in place for the next one; rows beyond the
// current batch are never touched before their own upload succeeds.
func (a *TradeArchiver) ArchiveOldData(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	run := time.Now().UTC().Format("20060102T150405Z")

	var uploaded, deleted int64
	for batch := 0; ; batch++ {
		trades, err := a.trades.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(trades) == 0 {
			break
		}

		buf, err := marshalJSONL(trades)
		if err != nil {
			return fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		// The run stamp and batch index keep keys unique across
		// same-day passes instead of overwriting an earlier object.
		path := fmt.Sprintf("archive/trades/%s/%s-%04d.jsonl",
			cutoff.Format("2006-01-02"), run, batch)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return fmt.Errorf("s3blob: archive upload: %w", err)
		}

		ids := make([]string, 0, len(trades))
		for _, t := range trades {
			ids = append(ids, t.ID)
		}
		n, err := a.trades.Delete(ctx, ids)
		if err != nil {
			// The batch is on S3; stopping here re-uploads it next
			// pass under a new key, which duplicates but never loses.
			return fmt.Errorf("s3blob: archive delete: %w", err)
		}
		uploaded += int64(len(trades))
		deleted += n

		a.logger.Info("trade batch archived",
			slog.Int("uploaded", len(trades)),
			slog.Int64("deleted", n),
			slog.String("path", path))
	}

	if uploaded == 0 {
		return nil
	}
	if a.audit != nil {
		if err := a.audit.Log(ctx, "trades_archived", map[string]any{
			"uploaded": uploaded,
			"deleted":  deleted,
			"cutoff":   cutoff.Format(time.RFC3339),
		}); err != nil {
			a.logger.Warn("audit write failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// marshalJSONL renders one JSON object per line.
func marshalJSONL(trades []domain.TradeRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
