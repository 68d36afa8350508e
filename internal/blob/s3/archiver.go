package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/causeway-labs/causeway/internal/domain"
)

// archivePageSize is how many rows are pulled from the store per page while
// collecting records for an archive file.
const archivePageSize = 500

// ArchiveImpl implements domain.Archiver by paging settled records out of the
// domain stores, serializing them to NDJSON, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	store  domain.Store
}

// NewArchiver creates a new ArchiveImpl over the given store. The reader is
// used to append to an existing month file rather than replace it; nil
// disables the merge and each upload overwrites.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, store domain.Store) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		store:  store,
	}
}

// ArchiveResolvedEvents collects all events resolved strictly before the
// cutoff, serializes them to NDJSON, and uploads the file to S3 at
// archive/events/YYYY-MM.ndjson. The archival is recorded in the audit log
// and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveResolvedEvents(ctx context.Context, before time.Time) (int64, error) {
	var resolved []domain.Event

	err := a.eachPage(ctx, func(opts domain.ListOpts) (int, error) {
		events, err := a.store.Events().List(ctx, opts)
		if err != nil {
			return 0, err
		}
		for _, e := range events {
			if e.Resolved() && e.ResolvedAt != nil && e.ResolvedAt.Before(before) {
				resolved = append(resolved, e)
			}
		}
		return len(events), nil
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}

	buf, err := marshalNDJSON(resolved)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}
	return a.upload(ctx, "events", before, buf, int64(len(resolved)))
}

// ArchiveExecutedClauses collects all clauses executed (paid out or refunded)
// strictly before the cutoff and uploads them to
// archive/clauses/YYYY-MM.ndjson.
func (a *ArchiveImpl) ArchiveExecutedClauses(ctx context.Context, before time.Time) (int64, error) {
	var executed []domain.Clause

	err := a.eachPage(ctx, func(opts domain.ListOpts) (int, error) {
		events, err := a.store.Events().List(ctx, opts)
		if err != nil {
			return 0, err
		}
		for _, e := range events {
			clauses, err := a.store.Clauses().ListByEvent(ctx, e.ID, domain.ListOpts{})
			if err != nil {
				return 0, err
			}
			for _, c := range clauses {
				if c.Executed && c.ExecutedAt != nil && c.ExecutedAt.Before(before) {
					executed = append(executed, c)
				}
			}
		}
		return len(events), nil
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive clauses query: %w", err)
	}

	buf, err := marshalNDJSON(executed)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive clauses marshal: %w", err)
	}
	return a.upload(ctx, "clauses", before, buf, int64(len(executed)))
}

// ArchiveTransfers collects the escrow vault's transfer receipts recorded
// strictly before the cutoff and uploads them to
// archive/transfers/YYYY-MM.ndjson. The escrow vault touches every deposit,
// payout, and refund, so its history is the full escrow money trail.
func (a *ArchiveImpl) ArchiveTransfers(ctx context.Context, before time.Time) (int64, error) {
	var old []domain.Transfer

	err := a.eachPage(ctx, func(opts domain.ListOpts) (int, error) {
		transfers, err := a.store.Transfers().ListByAccount(ctx, domain.VaultEscrow, opts)
		if err != nil {
			return 0, err
		}
		for _, t := range transfers {
			if t.CreatedAt.Before(before) {
				old = append(old, t)
			}
		}
		return len(transfers), nil
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers query: %w", err)
	}

	buf, err := marshalNDJSON(old)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers marshal: %w", err)
	}
	return a.upload(ctx, "transfers", before, buf, int64(len(old)))
}

// eachPage invokes fn with successive pagination windows until a page comes
// back short, meaning the underlying listing is exhausted.
func (a *ArchiveImpl) eachPage(ctx context.Context, fn func(domain.ListOpts) (int, error)) error {
	for offset := 0; ; offset += archivePageSize {
		n, err := fn(domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return err
		}
		if n < archivePageSize {
			return nil
		}
	}
}

// upload writes the archive object and logs the archival to the audit trail.
// Empty record sets produce no object.
func (a *ArchiveImpl) upload(ctx context.Context, kind string, before time.Time, buf []byte, count int64) (int64, error) {
	if count == 0 {
		return 0, nil
	}

	path := archivePath(kind, before)
	merged, err := a.mergeExisting(ctx, path, buf)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s merge: %w", kind, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(merged), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	if err := a.store.Audit().Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}

	return count, nil
}

// mergeExisting folds the new NDJSON lines into whatever is already stored
// at path. Records survive in the primary store after archival, so a rerun
// within the same month re-selects them; deduplicating on the serialized
// line keeps the month file append-only without repeats.
func (a *ArchiveImpl) mergeExisting(ctx context.Context, path string, fresh []byte) ([]byte, error) {
	if a.reader == nil {
		return fresh, nil
	}

	body, err := a.reader.Get(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()

	existing, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, line := range bytes.Split(existing, []byte("\n")) {
		if len(line) > 0 {
			seen[string(line)] = struct{}{}
		}
	}

	merged := bytes.NewBuffer(existing)
	for _, line := range bytes.Split(fresh, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if _, dup := seen[string(line)]; dup {
			continue
		}
		merged.Write(line)
		merged.WriteByte('\n')
	}
	return merged.Bytes(), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/events/2025-01.ndjson
//	archive/clauses/2025-01.ndjson
//	archive/transfers/2025-01.ndjson
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.ndjson", kind, before.Format("2006-01"))
}

// marshalNDJSON serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
