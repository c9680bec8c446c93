package repo

import (
	"context"
	"database/sql"
	"time"

	"etraxis/internal/domain"
)

const fieldColumns = `id, state_id, name, type, COALESCE(description,''), position, required, removed_at`

func scanField(s rowScanner) (domain.Field, error) {
	var f domain.Field
	var typ string
	var required int
	var removed sql.NullString
	if err := s.Scan(&f.ID, &f.StateID, &f.Name, &typ, &f.Description, &f.Position, &required, &removed); err != nil {
		return f, notFound(err)
	}
	f.Type = domain.FieldType(typ)
	f.Required = required != 0
	var err error
	f.RemovedAt, err = parseNullTime(removed)
	return f, err
}

func (r Repo) InsertField(ctx context.Context, tx *sql.Tx, f domain.Field) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO fields(state_id, name, type, description, position, required) VALUES (?,?,?,?,?,?)`,
		f.StateID, f.Name, string(f.Type), nullable(f.Description), f.Position, boolInt(f.Required))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetField(ctx context.Context, tx *sql.Tx, id int64) (domain.Field, error) {
	return scanField(r.q(tx).QueryRowContext(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id=?`, id))
}

// ListFields returns the live fields of the state in position order.
func (r Repo) ListFields(ctx context.Context, tx *sql.Tx, stateID int64) ([]domain.Field, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+fieldColumns+` FROM fields WHERE state_id=? AND removed_at IS NULL ORDER BY position`, stateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) NextFieldPosition(ctx context.Context, tx *sql.Tx, stateID int64) (int, error) {
	return countRow(ctx, r.q(tx), `SELECT COALESCE(MAX(position),0)+1 FROM fields WHERE state_id=? AND removed_at IS NULL`, stateID)
}

// RemoveField soft-deletes the field so existing values stay readable.
func (r Repo) RemoveField(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE fields SET removed_at=? WHERE id=? AND removed_at IS NULL`, formatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteField(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM fields WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountFieldValues(ctx context.Context, tx *sql.Tx, fieldID int64) (int, error) {
	return countRow(ctx, r.q(tx), `SELECT COUNT(*) FROM field_values WHERE field_id=?`, fieldID)
}

func (r Repo) InsertListItem(ctx context.Context, tx *sql.Tx, li domain.ListItem) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO list_items(field_id, value, text) VALUES (?,?,?)`, li.FieldID, li.Value, li.Text)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetListItem(ctx context.Context, tx *sql.Tx, id int64) (domain.ListItem, error) {
	var li domain.ListItem
	err := r.q(tx).QueryRowContext(ctx, `SELECT id, field_id, value, text FROM list_items WHERE id=?`, id).
		Scan(&li.ID, &li.FieldID, &li.Value, &li.Text)
	return li, notFound(err)
}

func (r Repo) ListListItems(ctx context.Context, fieldID int64) ([]domain.ListItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, field_id, value, text FROM list_items WHERE field_id=? ORDER BY value`, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ListItem
	for rows.Next() {
		var li domain.ListItem
		if err := rows.Scan(&li.ID, &li.FieldID, &li.Value, &li.Text); err != nil {
			return nil, err
		}
		res = append(res, li)
	}
	return res, rows.Err()
}

func (r Repo) DeleteListItem(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM list_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountListItemUsage(ctx context.Context, tx *sql.Tx, itemID int64) (int, error) {
	return countRow(ctx, r.q(tx), `SELECT COUNT(*) FROM field_values WHERE list_item_id=?`, itemID)
}

func (r Repo) UpsertFieldValue(ctx context.Context, tx *sql.Tx, v domain.FieldValue) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO field_values(issue_id, field_id, value, list_item_id) VALUES (?,?,?,?)
ON CONFLICT(issue_id, field_id) DO UPDATE SET value=excluded.value, list_item_id=excluded.list_item_id`,
		v.IssueID, v.FieldID, v.Value, nullableID(v.ListItemID))
	return err
}

func (r Repo) FieldValues(ctx context.Context, issueID int64) ([]domain.FieldValue, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT issue_id, field_id, value, list_item_id FROM field_values WHERE issue_id=? ORDER BY field_id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FieldValue
	for rows.Next() {
		var v domain.FieldValue
		var item sql.NullInt64
		if err := rows.Scan(&v.IssueID, &v.FieldID, &v.Value, &item); err != nil {
			return nil, err
		}
		v.ListItemID = nullInt64Ptr(item)
		res = append(res, v)
	}
	return res, rows.Err()
}
