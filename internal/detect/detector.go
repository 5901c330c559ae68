// Package detect compares a freshly scraped record set against the latest
// stored snapshot of the same period and reports what changed.
//
// Records are matched by case number. Records without one are ignored,
// cases that disappear are not reported, and every field rule is
// directional (see Rules). The detector holds no state between calls;
// runs for the same period must be serialized by the caller.
package detect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjenkins/visawatch/internal/model"
)

// Store is the read side of snapshot persistence the detector needs
type Store interface {
	// GetLatestSnapshot returns nil, nil when the period has no snapshot.
	GetLatestSnapshot(ctx context.Context, period string) (*model.Snapshot, error)
	GetRecordsBySnapshot(ctx context.Context, snapshotID string) ([]model.Record, error)
	GetRecordsByCaseNumber(ctx context.Context, caseNumber string) ([]model.Record, error)
}

// Detector computes changes between a new record set and its baseline
type Detector struct {
	store Store
}

// NewDetector creates a new Detector
func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// DetectChanges compares newRecords with the latest snapshot of period.
// NewSnapshotID is left null on every change; the caller fills it in once
// the new snapshot has been saved. Store errors are returned unmodified.
func (d *Detector) DetectChanges(ctx context.Context, newRecords []model.Record, period string) ([]model.Change, error) {
	baseline, err := d.store.GetLatestSnapshot(ctx, period)
	if err != nil {
		return nil, err
	}

	current, order := indexByCaseNumber(newRecords)

	if baseline == nil {
		changes := make([]model.Change, 0, len(order))
		for _, caseNumber := range order {
			changes = append(changes, newRecordChange(current[caseNumber], sql.NullString{}))
		}
		return changes, nil
	}

	oldRecords, err := d.store.GetRecordsBySnapshot(ctx, baseline.ID)
	if err != nil {
		return nil, err
	}
	previous, _ := indexByCaseNumber(oldRecords)
	baselineID := sql.NullString{String: baseline.ID, Valid: true}

	var changes []model.Change
	for _, caseNumber := range order {
		rec := current[caseNumber]
		old, ok := previous[caseNumber]
		if !ok {
			changes = append(changes, newRecordChange(rec, baselineID))
			continue
		}
		for _, delta := range Classify(old, rec) {
			changes = append(changes, model.Change{
				CaseNumber:    caseNumber,
				OldSnapshotID: baselineID,
				Kind:          delta.Kind,
				FieldName:     sql.NullString{String: delta.Field, Valid: true},
				OldValue:      sql.NullString{String: delta.OldValue, Valid: true},
				NewValue:      delta.NewValue,
			})
		}
	}

	return changes, nil
}

// History returns every stored version of a case, oldest first.
func (d *Detector) History(ctx context.Context, caseNumber string) ([]model.Record, error) {
	return d.store.GetRecordsByCaseNumber(ctx, caseNumber)
}

// indexByCaseNumber keys records by case number, dropping records without
// one. Duplicates keep the last row at the position of the first.
func indexByCaseNumber(records []model.Record) (map[string]*model.Record, []string) {
	index := make(map[string]*model.Record, len(records))
	var order []string
	for i := range records {
		caseNumber := caseNumberOf(&records[i])
		if caseNumber == "" {
			continue
		}
		if _, seen := index[caseNumber]; !seen {
			order = append(order, caseNumber)
		}
		index[caseNumber] = &records[i]
	}
	return index, order
}

func caseNumberOf(r *model.Record) string {
	if r.CaseNumber != "" {
		return r.CaseNumber
	}
	return ExtractCaseNumber(r.DetailsLink)
}

func newRecordChange(r *model.Record, oldSnapshotID sql.NullString) model.Change {
	externalID := r.ExternalID
	if externalID == "" {
		externalID = "Unknown"
	}
	return model.Change{
		CaseNumber:    caseNumberOf(r),
		OldSnapshotID: oldSnapshotID,
		Kind:          model.ChangeNewRecord,
		NewValue:      fmt.Sprintf("New record: %s", externalID),
	}
}
