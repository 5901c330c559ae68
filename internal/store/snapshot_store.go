package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jjenkins/visawatch/internal/model"
)

const recordColumns = `
	id, snapshot_id, period, position, external_id, case_number,
	visa_type, visa_entry, consulate, major, status,
	check_date, complete_date, waiting_days, details_link, has_notes, note, details, created_at`

// RecordFilter narrows ListRecords
type RecordFilter struct {
	Consulate string
	VisaType  string
	Status    string
	Limit     int
}

// SnapshotStore handles database operations for snapshots and their records
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SnapshotStore
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot stores a new snapshot and all of its records in one transaction
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, period string, records []model.Record) (*model.Snapshot, error) {
	return s.SaveSnapshotWithChanges(ctx, period, records, nil)
}

// SaveSnapshotWithChanges stores a new snapshot, its records and the changes
// detected against its baseline in one transaction. NewSnapshotID is set on
// every change before it is written, so either all of it lands or nothing does.
func (s *SnapshotStore) SaveSnapshotWithChanges(ctx context.Context, period string, records []model.Record, changes []model.Change) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		ID:          uuid.NewString(),
		Period:      period,
		RecordCount: len(records),
		CreatedAt:   s.db.timestamp(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.db.rebind(`
		INSERT INTO snapshots (id, period, record_count, created_at)
		VALUES (?, ?, ?, ?)
	`), snap.ID, snap.Period, snap.RecordCount, snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot for %s: %w", period, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.db.rebind(`
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			snap.ID,
			period,
			i,
			r.ExternalID,
			r.CaseNumber,
			r.VisaType,
			r.VisaEntry,
			r.Consulate,
			r.Major,
			r.Status,
			r.CheckDate,
			r.CompleteDate,
			r.WaitingDays,
			r.DetailsLink,
			r.HasNotes,
			r.Note,
			r.Details,
			snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record %d of %s: %w", i, period, err)
		}
	}

	model.AssignSnapshot(changes, snap.ID)
	if err := insertChanges(ctx, s.db, tx, changes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return snap, nil
}

// GetLatestSnapshot returns the newest snapshot of period, or of any period
// when period is empty. It returns nil, nil when there is none.
func (s *SnapshotStore) GetLatestSnapshot(ctx context.Context, period string) (*model.Snapshot, error) {
	where := newWhereBuilder()
	where.Add("period", period)
	clause, args := where.Build()

	query := `
		SELECT id, period, record_count, created_at
		FROM snapshots` + clause + `
		ORDER BY created_at DESC
		LIMIT 1
	`

	var snap model.Snapshot
	err := s.db.QueryRowContext(ctx, s.db.rebind(query), args...).Scan(
		&snap.ID,
		&snap.Period,
		&snap.RecordCount,
		&snap.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot for %q: %w", period, err)
	}

	return &snap, nil
}

// ListSnapshots returns snapshots newest first, optionally for one period
func (s *SnapshotStore) ListSnapshots(ctx context.Context, period string, limit int) ([]model.Snapshot, error) {
	where := newWhereBuilder()
	where.Add("period", period)
	clause, args := where.Build()

	query := `
		SELECT id, period, record_count, created_at
		FROM snapshots` + clause + `
		ORDER BY created_at DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		if err := rows.Scan(&snap.ID, &snap.Period, &snap.RecordCount, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// GetRecordsBySnapshot returns every record of a snapshot in scrape order
func (s *SnapshotStore) GetRecordsBySnapshot(ctx context.Context, snapshotID string) ([]model.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE snapshot_id = ?
		ORDER BY position
	`, snapshotID)
}

// GetRecordsByCaseNumber returns every stored version of a case, oldest first
func (s *SnapshotStore) GetRecordsByCaseNumber(ctx context.Context, caseNumber string) ([]model.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE case_number = ?
		ORDER BY created_at ASC, position ASC
	`, caseNumber)
}

// ListRecords returns the records of a snapshot matching filter
func (s *SnapshotStore) ListRecords(ctx context.Context, snapshotID string, filter RecordFilter) ([]model.Record, error) {
	where := newWhereBuilder()
	where.Add("snapshot_id", snapshotID)
	where.Add("consulate", filter.Consulate)
	where.Add("visa_type", filter.VisaType)
	where.Add("status", filter.Status)
	clause, args := where.Build()

	query := `SELECT ` + recordColumns + ` FROM records` + clause + ` ORDER BY position`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryRecords(ctx, query, args...)
}

func (s *SnapshotStore) queryRecords(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var r model.Record
		err := rows.Scan(
			&r.ID,
			&r.SnapshotID,
			&r.Period,
			&r.Position,
			&r.ExternalID,
			&r.CaseNumber,
			&r.VisaType,
			&r.VisaEntry,
			&r.Consulate,
			&r.Major,
			&r.Status,
			&r.CheckDate,
			&r.CompleteDate,
			&r.WaitingDays,
			&r.DetailsLink,
			&r.HasNotes,
			&r.Note,
			&r.Details,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// Columns CountRecordsBy may group on
var groupableColumns = map[string]bool{
	"status":     true,
	"visa_type":  true,
	"consulate":  true,
	"visa_entry": true,
	"major":      true,
}

// CountRecordsBy returns the number of records of a snapshot per value of column
func (s *SnapshotStore) CountRecordsBy(ctx context.Context, snapshotID, column string) (map[string]int, error) {
	if !groupableColumns[column] {
		return nil, fmt.Errorf("cannot group records by %q", column)
	}

	query := `
		SELECT ` + column + `, COUNT(*)
		FROM records
		WHERE snapshot_id = ?
		GROUP BY ` + column

	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var value string
		var n int
		if err := rows.Scan(&value, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[value] = n
	}

	return counts, rows.Err()
}

// WaitingDaysSummary holds aggregate waiting days over the records that have one
type WaitingDaysSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"avg"`
	Min     int64   `json:"min"`
	Max     int64   `json:"max"`
}

// SummarizeWaitingDays aggregates waiting days of a snapshot.
// It returns nil when no record has a waiting days value.
func (s *SnapshotStore) SummarizeWaitingDays(ctx context.Context, snapshotID string) (*WaitingDaysSummary, error) {
	query := `
		SELECT COUNT(waiting_days), AVG(waiting_days), MIN(waiting_days), MAX(waiting_days)
		FROM records
		WHERE snapshot_id = ?
	`

	var count int
	var avg sql.NullFloat64
	var lo, hi sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.db.rebind(query), snapshotID).Scan(&count, &avg, &lo, &hi)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize waiting days: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	return &WaitingDaysSummary{
		Count:   count,
		Average: avg.Float64,
		Min:     lo.Int64,
		Max:     hi.Int64,
	}, nil
}
