package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jjenkins/visawatch/internal/model"
)

// ChangeFilter narrows ListChanges. Zero values mean "any".
type ChangeFilter struct {
	Since      time.Time
	Period     string
	Kind       model.ChangeKind
	CaseNumber string
	Limit      int
}

// ChangeStore handles database operations for detected changes
type ChangeStore struct {
	db *DB
}

// NewChangeStore creates a new ChangeStore
func NewChangeStore(db *DB) *ChangeStore {
	return &ChangeStore{db: db}
}

// SaveChanges appends a batch of changes in one transaction.
// IDs and detection times are assigned on the passed slice.
func (s *ChangeStore) SaveChanges(ctx context.Context, changes []model.Change) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertChanges(ctx, s.db, tx, changes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertChanges(ctx context.Context, db *DB, tx *sql.Tx, changes []model.Change) error {
	if len(changes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO changes (id, case_number, old_snapshot_id, new_snapshot_id,
		                     change_kind, field_name, old_value, new_value, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare change insert: %w", err)
	}
	defer stmt.Close()

	detectedAt := db.timestamp()
	for i := range changes {
		c := &changes[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.DetectedAt.IsZero() {
			c.DetectedAt = detectedAt
		}
		_, err := stmt.ExecContext(ctx,
			c.ID,
			c.CaseNumber,
			c.OldSnapshotID,
			c.NewSnapshotID,
			string(c.Kind),
			c.FieldName,
			c.OldValue,
			c.NewValue,
			c.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert change for case %s: %w", c.CaseNumber, err)
		}
	}

	return nil
}

// ListChanges returns changes newest first. The period filter matches the
// period of the snapshot a change was recorded with.
func (s *ChangeStore) ListChanges(ctx context.Context, filter ChangeFilter) ([]model.Change, error) {
	where := newWhereBuilder()
	if !filter.Since.IsZero() {
		where.AddRaw("c.detected_at >= ?", filter.Since.UTC())
	}
	where.Add("c.change_kind", string(filter.Kind))
	where.Add("c.case_number", filter.CaseNumber)

	from := " FROM changes c"
	if filter.Period != "" {
		from += " INNER JOIN snapshots s ON s.id = c.new_snapshot_id"
		where.Add("s.period", filter.Period)
	}
	clause, args := where.Build()

	query := `
		SELECT c.id, c.case_number, c.old_snapshot_id, c.new_snapshot_id,
		       c.change_kind, c.field_name, c.old_value, c.new_value, c.detected_at` +
		from + clause + `
		ORDER BY c.detected_at DESC, c.case_number`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get changes: %w", err)
	}
	defer rows.Close()

	var changes []model.Change
	for rows.Next() {
		var c model.Change
		var kind string
		err := rows.Scan(
			&c.ID,
			&c.CaseNumber,
			&c.OldSnapshotID,
			&c.NewSnapshotID,
			&kind,
			&c.FieldName,
			&c.OldValue,
			&c.NewValue,
			&c.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Kind = model.ChangeKind(kind)
		changes = append(changes, c)
	}

	return changes, rows.Err()
}
