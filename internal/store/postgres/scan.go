package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanDraft scans a single row into a model.Draft.
// The row must contain columns in the order defined by draftColumns.
func scanDraft(row scannable) (*model.Draft, error) {
	d, _, err := scanDraftColumns(row, false)
	return d, err
}

// scanDraftWithTotal scans a row that has a leading total_count column
// followed by the standard draft columns.
func scanDraftWithTotal(row scannable) (*model.Draft, int, error) {
	return scanDraftColumns(row, true)
}

func scanDraftColumns(row scannable, withTotal bool) (*model.Draft, int, error) {
	var (
		d         model.Draft
		total     int
		mode      string
		blocks    []byte
		createdBy sql.NullString
	)
	dest := []any{&d.ID, &d.Name, &mode, &blocks, &createdBy, &d.CreatedAt, &d.UpdatedAt}
	if withTotal {
		dest = append([]any{&total}, dest...)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, 0, err
	}

	d.Mode = model.Mode(mode)
	d.CreatedBy = createdBy.String
	if len(blocks) > 0 {
		if err := json.Unmarshal(blocks, &d.Blocks); err != nil {
			return nil, 0, fmt.Errorf("decode blocks of %s: %w", d.ID, err)
		}
	}
	return &d, total, nil
}

func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		actor   sql.NullString
		payload []byte
	)
	err := row.Scan(&e.ID, &e.Topic, &e.DraftID, &actor, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// blocksJSON encodes a collection for the blocks JSONB column.
func blocksJSON(c model.Collection) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode blocks: %w", err)
	}
	return b, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
