// internal/infra/database/postgres_record_store.go
package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"clinic_notification_engine/internal/domain/clinic"

	"github.com/lib/pq" // For pq.Array
)

var ErrUnsupportedOp = fmt.Errorf("unsupported filter operator")

// PostgresRecordStore serves schemaless clinic documents from a JSONB table:
//
//	clinic_records(collection TEXT, id TEXT, doc JSONB)
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// buildRecordQuery renders q as SQL. Field names are always bound as
// parameters, never spliced into the statement.
func buildRecordQuery(q clinic.Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{q.Collection}
	sb.WriteString("SELECT id, doc FROM clinic_records WHERE collection = $1")

	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, f := range q.Filters {
		field := next(f.Field)
		switch f.Op {
		case clinic.OpEq:
			fmt.Fprintf(&sb, " AND doc->>%s = %s", field, next(fmt.Sprint(f.Value)))
		case clinic.OpNeq:
			fmt.Fprintf(&sb, " AND doc->>%s IS DISTINCT FROM %s", field, next(fmt.Sprint(f.Value)))
		case clinic.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("%w: %q needs a []string value", ErrUnsupportedOp, f.Op)
			}
			fmt.Fprintf(&sb, " AND doc->>%s = ANY(%s)", field, next(pq.Array(values)))
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedOp, f.Op)
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY doc->>%s %s, id", next(q.OrderBy), dir)
	} else {
		sb.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", next(q.Limit))
	}
	return sb.String(), args, nil
}

func (s *PostgresRecordStore) Query(ctx context.Context, q clinic.Query) ([]clinic.Record, error) {
	query, args, err := buildRecordQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", q.Collection, err)
	}
	defer rows.Close()

	records := make([]clinic.Record, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("error scanning %s row: %w", q.Collection, err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("error decoding %s/%s: %w", q.Collection, id, err)
		}
		if _, ok := rec["id"]; !ok {
			rec["id"] = id
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", q.Collection, err)
	}
	return records, nil
}

// Upsert writes one document, replacing any previous version.
func (s *PostgresRecordStore) Upsert(ctx context.Context, collection, id string, doc clinic.Record) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error encoding %s/%s: %w", collection, id, err)
	}
	query := `INSERT INTO clinic_records (collection, id, doc, updated_at)
               VALUES ($1, $2, $3, NOW())
               ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("error upserting %s/%s: %w", collection, id, err)
	}
	return nil
}

// decodeRecord keeps numbers as json.Number so amounts never pass through float64.
func decodeRecord(raw []byte) (clinic.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	rec := clinic.Record{}
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
