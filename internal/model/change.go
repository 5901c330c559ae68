package model

import (
	"database/sql"
	"fmt"
	"time"
)

// ChangeKind enumerates the kinds of detected differences
type ChangeKind string

const (
	ChangeNewRecord         ChangeKind = "new_record"
	ChangeStatus            ChangeKind = "status_change"
	ChangeDateUpdate        ChangeKind = "date_update"
	ChangeWaitingDaysUpdate ChangeKind = "waiting_days_update"
	ChangeNoteAdded         ChangeKind = "note_added"
	ChangeNoteUpdated       ChangeKind = "note_updated"
)

// ChangeKinds lists every kind in display order
var ChangeKinds = []ChangeKind{
	ChangeNewRecord,
	ChangeStatus,
	ChangeDateUpdate,
	ChangeWaitingDaysUpdate,
	ChangeNoteAdded,
	ChangeNoteUpdated,
}

// ParseChangeKind validates a user-supplied change kind
func ParseChangeKind(s string) (ChangeKind, error) {
	for _, k := range ChangeKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown change kind %q", s)
}

// Change is one detected difference for a case between two snapshots
type Change struct {
	ID            string
	CaseNumber    string
	OldSnapshotID sql.NullString
	NewSnapshotID sql.NullString
	Kind          ChangeKind
	FieldName     sql.NullString
	OldValue      sql.NullString
	NewValue      string
	DetectedAt    time.Time
}

// AssignSnapshot backfills the new snapshot id on every change
func AssignSnapshot(changes []Change, snapshotID string) {
	for i := range changes {
		changes[i].NewSnapshotID = sql.NullString{String: snapshotID, Valid: true}
	}
}

// CountByKind tallies changes per kind
func CountByKind(changes []Change) map[ChangeKind]int {
	counts := make(map[ChangeKind]int)
	for _, c := range changes {
		counts[c.Kind]++
	}
	return counts
}
