package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outcomelab/predengine/internal/domain"
)

// Archive implements domain.Archiver by querying the execution-history
// stores for rows older than the cutoff, serializing them to gzipped NDJSON,
// uploading the result to S3, and then purging the exported rows. The purge
// only runs after the upload succeeded, so a failed run leaves the primary
// store intact.
type Archive struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	swaps  domain.SwapStore
	audit  domain.AuditStore
}

// NewArchiver creates a new Archive.
func NewArchiver(
	writer domain.BlobWriter,
	trades domain.TradeStore,
	swaps domain.SwapStore,
	audit domain.AuditStore,
) *Archive {
	return &Archive{
		writer: writer,
		trades: trades,
		swaps:  swaps,
		audit:  audit,
	}
}

// ArchiveTrades exports all trades executed strictly before the cutoff to
// archive/trades/YYYY-MM.ndjson.gz, purges them from the store, and records
// the run in the audit log. Returns the number of rows archived.
func (a *Archive) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalGzippedNDJSON(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/gzip"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades purge: %w", err)
	}

	if err := a.auditRun(ctx, "archive.trades", path, deleted, before); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// ArchiveSwaps does the same for AMM swap history, under archive/swaps/.
func (a *Archive) ArchiveSwaps(ctx context.Context, before time.Time) (int64, error) {
	swaps, err := a.swaps.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps query: %w", err)
	}
	if len(swaps) == 0 {
		return 0, nil
	}

	buf, err := marshalGzippedNDJSON(swaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps marshal: %w", err)
	}

	path := archivePath("swaps", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/gzip"); err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps upload: %w", err)
	}

	deleted, err := a.swaps.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps purge: %w", err)
	}

	if err := a.auditRun(ctx, "archive.swaps", path, deleted, before); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (a *Archive) auditRun(ctx context.Context, event, path string, count int64, before time.Time) error {
	if a.audit == nil {
		return nil
	}
	if err := a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.ndjson.gz
//	archive/swaps/2026-08.ndjson.gz
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.ndjson.gz", kind, before.Format("2006-01"))
}

// marshalGzippedNDJSON serialises a slice of values as gzip-compressed
// newline-delimited JSON, one compact line per record.
func marshalGzippedNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("ndjson gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
