package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fairdoc-ai/fairdoc/config"
	"github.com/fairdoc-ai/fairdoc/internal/provenance"
)

// Store wraps the relational backend. All single-row-per-document
// writes are keyed by filename with upsert-on-conflict semantics; the
// provenance ledger is append-only.
type Store struct {
	DB *sql.DB
}

// New opens a Postgres connection from configuration.
func New(cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// Content row types stored in pdf_documents.
const (
	ContentTypeText  = "text"
	ContentTypeTable = "table"
	ContentTypeImage = "image"
)

// ContentRow is one page-level content chunk.
type ContentRow struct {
	ID          int64
	Filename    string
	Page        int
	ContentType string
	Content     string
	ImagePath   string
	TableData   [][]string
	QdrantID    string
	CreatedAt   time.Time
}

// ReplaceContent swaps the stored content rows for a document in one
// transaction, keeping re-runs from accumulating duplicate rows.
func (s *Store) ReplaceContent(ctx context.Context, filename string, rows []ContentRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pdf_documents WHERE filename = $1`, filename); err != nil {
		return fmt.Errorf("delete content rows: %w", err)
	}

	for _, row := range rows {
		var tableJSON interface{}
		if row.TableData != nil {
			b, err := json.Marshal(row.TableData)
			if err != nil {
				return fmt.Errorf("marshal table data: %w", err)
			}
			tableJSON = b
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO pdf_documents (filename, page_number, content_type, content, image_path, table_data, qdrant_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			filename, row.Page, row.ContentType, nullStr(row.Content), nullStr(row.ImagePath), tableJSON, row.QdrantID,
		); err != nil {
			return fmt.Errorf("insert content row: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertDocument records the per-document processing row.
func (s *Store) UpsertDocument(ctx context.Context, filename, status string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO documents (filename, status)
VALUES ($1,$2)
ON CONFLICT (filename) DO UPDATE SET
  status = EXCLUDED.status,
  updated_at = NOW()`, filename, status)
	return err
}

// UpdateCurationStatus records the curation side effect on the FAIR
// metadata row. Nil quality score and empty validation status leave the
// existing values untouched.
func (s *Store) UpdateCurationStatus(ctx context.Context, filename, status string, qualityScore *float64, validationStatus string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE fair_metadata
SET curation_status = $2,
    quality_score = COALESCE($3, quality_score),
    validation_status = COALESCE(NULLIF($4, ''), validation_status),
    updated_at = NOW()
WHERE filename = $1`, filename, status, qualityScore, validationStatus)
	return err
}

// UpsertFAIRMetadata persists the final FAIR metadata mapping and its
// full provenance chain, one row per document.
func (s *Store) UpsertFAIRMetadata(ctx context.Context, filename string, meta map[string]interface{}, chain []provenance.Entry) error {
	authors, err := jsonField(meta, "authors", "[]")
	if err != nil {
		return err
	}
	citation, err := jsonField(meta, "citation_info", "{}")
	if err != nil {
		return err
	}
	vocabularies, err := jsonField(meta, "controlled_vocabularies", "{}")
	if err != nil {
		return err
	}
	full, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	prov, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	schema := strField(meta, "metadata_schema")
	if schema == "" {
		schema = "DataCite"
	}

	_, err = s.DB.ExecContext(ctx, `
INSERT INTO fair_metadata (
  filename, doi, title, authors, abstract, keywords, publication_date,
  journal, license, repository_url, data_availability, methodology,
  citation_info, controlled_vocabularies, metadata_schema, metadata, provenance
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (filename) DO UPDATE SET
  doi = EXCLUDED.doi,
  title = EXCLUDED.title,
  authors = EXCLUDED.authors,
  abstract = EXCLUDED.abstract,
  keywords = EXCLUDED.keywords,
  publication_date = EXCLUDED.publication_date,
  journal = EXCLUDED.journal,
  license = EXCLUDED.license,
  repository_url = EXCLUDED.repository_url,
  data_availability = EXCLUDED.data_availability,
  methodology = EXCLUDED.methodology,
  citation_info = EXCLUDED.citation_info,
  controlled_vocabularies = EXCLUDED.controlled_vocabularies,
  metadata_schema = EXCLUDED.metadata_schema,
  metadata = EXCLUDED.metadata,
  provenance = EXCLUDED.provenance,
  updated_at = NOW()`,
		filename,
		nullStr(strField(meta, "doi")),
		nullStr(strField(meta, "title")),
		authors,
		nullStr(strField(meta, "abstract")),
		pq.Array(strSliceField(meta, "keywords")),
		nullStr(strField(meta, "publication_date")),
		nullStr(strField(meta, "journal")),
		nullStr(strField(meta, "license")),
		nullStr(strField(meta, "repository_url")),
		nullStr(strField(meta, "data_availability")),
		nullStr(strField(meta, "methodology")),
		citation,
		vocabularies,
		schema,
		full,
		prov,
	)
	return err
}

// Append writes one provenance entry to the durable ledger. Implements
// provenance.Ledger.
func (s *Store) Append(ctx context.Context, filename string, e provenance.Entry) error {
	input, err := marshalOrNil(e.Input)
	if err != nil {
		return err
	}
	output, err := marshalOrNil(e.Output)
	if err != nil {
		return err
	}
	meta, err := marshalOrNil(e.Meta)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO provenance_ledger (filename, action, actor, status, recorded_at, input, output, error, meta)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		filename, e.Action, e.Actor, e.Status, e.Timestamp, input, output, nullStr(e.Error), meta)
	if err != nil {
		return fmt.Errorf("append provenance: %w", err)
	}
	return nil
}

// ListDocuments returns the distinct filenames with stored content.
func (s *Store) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT filename FROM pdf_documents ORDER BY filename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetDocumentContent returns a document's content rows in page order.
func (s *Store) GetDocumentContent(ctx context.Context, filename string) ([]ContentRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, page_number, content_type, COALESCE(content, ''), COALESCE(image_path, ''), table_data, qdrant_id, created_at
FROM pdf_documents WHERE filename = $1 ORDER BY page_number, id`, filename)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContentRow
	for rows.Next() {
		row := ContentRow{Filename: filename}
		var tableJSON []byte
		if err := rows.Scan(&row.ID, &row.Page, &row.ContentType, &row.Content, &row.ImagePath, &tableJSON, &row.QdrantID, &row.CreatedAt); err != nil {
			return nil, err
		}
		if len(tableJSON) > 0 {
			if err := json.Unmarshal(tableJSON, &row.TableData); err != nil {
				return nil, fmt.Errorf("unmarshal table data: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetContentByQdrantID hydrates the content row behind a vector hit.
func (s *Store) GetContentByQdrantID(ctx context.Context, qdrantID string) (*ContentRow, error) {
	row := &ContentRow{QdrantID: qdrantID}
	var tableJSON []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id, filename, page_number, content_type, COALESCE(content, ''), COALESCE(image_path, ''), table_data, created_at
FROM pdf_documents WHERE qdrant_id = $1`, qdrantID).
		Scan(&row.ID, &row.Filename, &row.Page, &row.ContentType, &row.Content, &row.ImagePath, &tableJSON, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(tableJSON) > 0 {
		if err := json.Unmarshal(tableJSON, &row.TableData); err != nil {
			return nil, fmt.Errorf("unmarshal table data: %w", err)
		}
	}
	return row, nil
}

// GetFAIRMetadata returns the stored metadata mapping for a document.
func (s *Store) GetFAIRMetadata(ctx context.Context, filename string) (map[string]interface{}, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT metadata FROM fair_metadata WHERE filename = $1`, filename).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func strField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// strSliceField never returns nil; keywords has a NOT NULL array column
// and pq.Array maps a nil slice to SQL NULL.
func strSliceField(m map[string]interface{}, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func jsonField(m map[string]interface{}, key, def string) ([]byte, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return []byte(def), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}
	return b, nil
}

func marshalOrNil(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}
