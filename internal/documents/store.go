package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/walksalot/docpipe/internal/db"
	"github.com/walksalot/docpipe/internal/errkind"
	"github.com/walksalot/docpipe/internal/migrate"
)

// Store is the sole durable store for Document rows.
type Store struct {
	db *db.DB
}

// Open wraps an already-open *db.DB and runs the documents package's
// migrations against it.
func Open(d *db.DB) (*Store, error) {
	d.Lock()
	defer d.Unlock()
	if err := migrate.Apply(d.DB, migrations); err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	return &Store{db: d}, nil
}

// FindByHash consults only live (non-soft-deleted) rows.
func (s *Store) FindByHash(ctx context.Context, hex string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM documents WHERE sha256_hex = ? AND deleted_at IS NULL`, hex)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "finding document by hash")
	}
	return doc, nil
}

// FindByID fetches a row regardless of soft-delete state.
func (s *Store) FindByID(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "finding document by id")
	}
	return doc, nil
}

// Insert assigns an id and sets created_at = updated_at = now. A live row
// with the same hash already existing surfaces as DuplicateHashError rather
// than a generic SQL error.
func (s *Store) Insert(ctx context.Context, draft *Document) (*Document, error) {
	now := time.Now().UTC()
	doc := *draft
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	args, err := doc.insertArgs()
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "marshaling document for insert")
	}

	res, err := s.db.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		if isUniqueConstraintErr(err) {
			existing, findErr := s.FindByHash(ctx, doc.SHA256Hex)
			if findErr == nil && existing != nil {
				return nil, &DuplicateHashError{Hex: doc.SHA256Hex, ExistingID: existing.ID}
			}
			return nil, &DuplicateHashError{Hex: doc.SHA256Hex}
		}
		return nil, errkind.Wrap(errkind.Internal, err, "inserting document")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "reading inserted id")
	}
	doc.ID = id
	return &doc, nil
}

// Update advances updated_at. Forbidden on soft-deleted rows.
func (s *Store) Update(ctx context.Context, doc *Document) (*Document, error) {
	existing, err := s.FindByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errkind.New(errkind.Internal, "update: document not found")
	}
	if !existing.IsLive() {
		return nil, errkind.New(errkind.Internal, "update: document is soft-deleted")
	}

	updated := *doc
	updated.UpdatedAt = time.Now().UTC()
	args, err := updated.updateArgs()
	if err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "marshaling document for update")
	}

	if _, err := s.db.ExecContext(ctx, updateSQL, args...); err != nil {
		return nil, errkind.Wrap(errkind.Internal, err, "updating document")
	}
	return &updated, nil
}

// SoftDelete sets deleted_at, freeing the hash for future re-insertion.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return errkind.Wrap(errkind.Internal, err, "soft-deleting document")
	}
	return nil
}

// HealthCheck performs a trivial round trip.
func (s *Store) HealthCheck(ctx context.Context) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
	return err == nil && one == 1
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// DuplicateHashError is returned by Insert when a live row with the same
// content hash already exists.
type DuplicateHashError struct {
	Hex        string
	ExistingID int64
}

func (e *DuplicateHashError) Error() string {
	return fmt.Sprintf("documents: duplicate hash %s (existing id %d)", e.Hex, e.ExistingID)
}

// Unwrap tags the error with errkind.DuplicateHash so errkind.Is and
// errkind.Classify recognise it.
func (e *DuplicateHashError) Unwrap() error {
	return errkind.New(errkind.DuplicateHash, "live row with the same hash exists")
}

const selectColumns = `SELECT
	id, sha256_hex, sha256_b64url,
	original_filename, file_size_bytes, page_count,
	doc_type, doc_subtype, confidence,
	issuer, recipient, primary_date, secondary_date, total_amount, currency,
	summary, action_items, deadlines, urgency, tags,
	ocr_excerpt, language,
	llm_file_id, vector_store_file_id,
	processed_at, duration_ms, model_used, prompt_tokens, completion_tokens, cached_tokens, cost_usd,
	extraction_quality, validation_errors, requires_review,
	raw_response,
	created_at, updated_at, deleted_at,
	status`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var d Document
	var actionItems, deadlines, tags, validationErrors string
	var rawResponse []byte

	err := row.Scan(
		&d.ID, &d.SHA256Hex, &d.SHA256B64URL,
		&d.OriginalFilename, &d.FileSizeBytes, &d.PageCount,
		&d.DocType, &d.DocSubtype, &d.Confidence,
		&d.Issuer, &d.Recipient, &d.PrimaryDate, &d.SecondaryDate, &d.TotalAmount, &d.Currency,
		&d.Summary, &actionItems, &deadlines, &d.Urgency, &tags,
		&d.OCRExcerpt, &d.Language,
		&d.LLMFileID, &d.VectorStoreFileID,
		&d.ProcessedAt, &d.DurationMS, &d.ModelUsed, &d.PromptTokens, &d.CompletionTokens, &d.CachedTokens, &d.CostUSD,
		(*string)(&d.ExtractionQuality), &validationErrors, &d.RequiresReview,
		&rawResponse,
		&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
		(*string)(&d.Status),
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actionItems), &d.ActionItems); err != nil {
		return nil, fmt.Errorf("unmarshal action_items: %w", err)
	}
	if err := json.Unmarshal([]byte(deadlines), &d.Deadlines); err != nil {
		return nil, fmt.Errorf("unmarshal deadlines: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(validationErrors), &d.ValidationErrors); err != nil {
		return nil, fmt.Errorf("unmarshal validation_errors: %w", err)
	}
	d.RawResponse = rawResponse
	return &d, nil
}

const insertSQL = `INSERT INTO documents (
	sha256_hex, sha256_b64url,
	original_filename, file_size_bytes, page_count,
	doc_type, doc_subtype, confidence,
	issuer, recipient, primary_date, secondary_date, total_amount, currency,
	summary, action_items, deadlines, urgency, tags,
	ocr_excerpt, language,
	llm_file_id, vector_store_file_id,
	processed_at, duration_ms, model_used, prompt_tokens, completion_tokens, cached_tokens, cost_usd,
	extraction_quality, validation_errors, requires_review,
	raw_response,
	created_at, updated_at, deleted_at,
	status
) VALUES (?,?, ?,?,?, ?,?,?, ?,?,?,?,?,?, ?,?,?,?,?, ?,?, ?,?, ?,?,?,?,?,?,?, ?,?,?, ?, ?,?,?, ?)`

const updateSQL = `UPDATE documents SET
	sha256_hex=?, sha256_b64url=?,
	original_filename=?, file_size_bytes=?, page_count=?,
	doc_type=?, doc_subtype=?, confidence=?,
	issuer=?, recipient=?, primary_date=?, secondary_date=?, total_amount=?, currency=?,
	summary=?, action_items=?, deadlines=?, urgency=?, tags=?,
	ocr_excerpt=?, language=?,
	llm_file_id=?, vector_store_file_id=?,
	processed_at=?, duration_ms=?, model_used=?, prompt_tokens=?, completion_tokens=?, cached_tokens=?, cost_usd=?,
	extraction_quality=?, validation_errors=?, requires_review=?,
	raw_response=?,
	updated_at=?,
	status=?
WHERE id=?`

func (d *Document) insertArgs() ([]any, error) {
	actionItems, err := json.Marshal(orEmpty(d.ActionItems))
	if err != nil {
		return nil, err
	}
	deadlines, err := json.Marshal(orEmpty(d.Deadlines))
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(orEmpty(d.Tags))
	if err != nil {
		return nil, err
	}
	validationErrors, err := json.Marshal(orEmpty(d.ValidationErrors))
	if err != nil {
		return nil, err
	}

	return []any{
		d.SHA256Hex, d.SHA256B64URL,
		d.OriginalFilename, d.FileSizeBytes, d.PageCount,
		d.DocType, d.DocSubtype, d.Confidence,
		d.Issuer, d.Recipient, d.PrimaryDate, d.SecondaryDate, d.TotalAmount, d.Currency,
		d.Summary, string(actionItems), string(deadlines), d.Urgency, string(tags),
		d.OCRExcerpt, d.Language,
		d.LLMFileID, d.VectorStoreFileID,
		d.ProcessedAt, d.DurationMS, d.ModelUsed, d.PromptTokens, d.CompletionTokens, d.CachedTokens, d.CostUSD,
		string(d.ExtractionQuality), string(validationErrors), d.RequiresReview,
		d.RawResponse,
		d.CreatedAt, d.UpdatedAt, d.DeletedAt,
		string(d.Status),
	}, nil
}

func (d *Document) updateArgs() ([]any, error) {
	args, err := d.insertArgs()
	if err != nil {
		return nil, err
	}
	// insertArgs' created_at/updated_at/deleted_at trio becomes just
	// updated_at for the UPDATE statement; drop created_at and deleted_at.
	n := len(args)
	trimmed := append(args[:n-4:n-4], args[n-3], args[n-1]) // updated_at, status
	return append(trimmed, d.ID), nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
