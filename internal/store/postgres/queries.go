package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
)

// draftColumns is the column list used for SELECT statements on the drafts table.
const draftColumns = `id, name, mode, blocks, created_by, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateDraft(ctx context.Context, db executor, d *model.Draft) error {
	blocks, err := blocksJSON(d.Blocks)
	if err != nil {
		return err
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO drafts (id, name, mode, blocks, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		d.ID,
		d.Name,
		string(d.Mode),
		blocks,
		nullString(d.CreatedBy),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func queryGetDraft(ctx context.Context, db executor, id string) (*model.Draft, error) {
	row := db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return d, err
}

func queryListDrafts(ctx context.Context, db executor, filter model.DraftFilter) ([]*model.Draft, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Search != "" {
		whereClauses = append(whereClauses, "name ILIKE '%' || "+nextArg()+" || '%'")
		args = append(args, filter.Search)
	}

	if filter.CreatedBy != "" {
		whereClauses = append(whereClauses, "created_by = "+nextArg())
		args = append(args, filter.CreatedBy)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + draftColumns + " FROM drafts" + whereSQL +
		" ORDER BY " + parseSortClause(filter.Sort) + ", id ASC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*model.Draft
	var total int
	for rows.Next() {
		d, t, err := scanDraftWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan drafts: %w", err)
		}
		total = t
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan drafts: %w", err)
	}

	return drafts, total, nil
}

func queryUpdateDraft(ctx context.Context, db executor, d *model.Draft) error {
	blocks, err := blocksJSON(d.Blocks)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx, `
		UPDATE drafts SET
			name = $2,
			mode = $3,
			blocks = $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID,
		d.Name,
		string(d.Mode),
		blocks,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func queryDeleteDraft(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, draft_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.DraftID, nullString(e.Actor), jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, draftID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, draft_id, actor, payload, created_at
		FROM events
		WHERE draft_id = $1
		ORDER BY id ASC`,
		draftID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// parseSortClause maps a sort key such as "-updated_at" onto an ORDER BY
// expression, falling back to newest first for unknown columns.
func parseSortClause(sort string) string {
	if sort == "" {
		return "created_at DESC"
	}
	desc := strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	allowed := map[string]bool{
		"name": true, "created_at": true, "updated_at": true,
	}
	if !allowed[col] {
		return "created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}
