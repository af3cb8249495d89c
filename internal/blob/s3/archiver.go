package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// Archiver implements domain.Archiver. Aged fair-price rows are serialized
// to JSONL, uploaded to S3 partitioned by day, and then deleted from the
// primary store. Deletion only happens after a successful upload so a failed
// archive never loses data.
type Archiver struct {
	writer  domain.BlobWriter
	results domain.ResultStore
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, results domain.ResultStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		results: results,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveResults uploads all results computed before the cutoff and removes
// them from the database. It returns the number of archived rows.
func (a *Archiver) ArchiveResults(ctx context.Context, before time.Time) (int64, error) {
	results, err := a.results.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive results query: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(results)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive results marshal: %w", err)
	}

	path := archivePath(results[0].Symbol, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive results upload: %w", err)
	}

	deleted, err := a.results.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive results delete: %w", err)
	}

	a.logger.InfoContext(ctx, "results archived",
		slog.String("path", path),
		slog.Int("archived", len(results)),
		slog.Int64("deleted", deleted),
	)

	return int64(len(results)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the day
// of the cutoff time:
//
//	archive/fair_prices/BTCUSDT/2026-08-28.jsonl
func archivePath(symbol string, before time.Time) string {
	return fmt.Sprintf("archive/fair_prices/%s/%s.jsonl", symbol, before.Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
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

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
