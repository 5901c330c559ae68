package handlers

import (
	"database/sql"
	"time"

	"github.com/jjenkins/visawatch/internal/model"
)

type changeDTO struct {
	ID            string    `json:"id"`
	CaseNumber    string    `json:"casenum"`
	OldSnapshotID *string   `json:"snapshot_id_old"`
	NewSnapshotID *string   `json:"snapshot_id_new"`
	ChangeType    string    `json:"change_type"`
	FieldName     *string   `json:"field_name"`
	OldValue      *string   `json:"old_value"`
	NewValue      string    `json:"new_value"`
	DetectedAt    time.Time `json:"detected_at"`
}

type recordDTO struct {
	ID           string    `json:"id"`
	SnapshotID   string    `json:"snapshot_id"`
	Month        string    `json:"month"`
	CaseNumber   string    `json:"casenum"`
	UserID       string    `json:"user_id"`
	VisaType     string    `json:"visa_type"`
	VisaEntry    string    `json:"visa_entry"`
	Consulate    string    `json:"consulate"`
	Major        string    `json:"major"`
	Status       string    `json:"status"`
	CheckDate    *string   `json:"check_date"`
	CompleteDate *string   `json:"complete_date"`
	WaitingDays  *int64    `json:"waiting_days"`
	DetailsLink  string    `json:"details_link"`
	HasNotes     bool      `json:"has_notes"`
	Note         string    `json:"note"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func toChangeDTOs(changes []model.Change) []changeDTO {
	out := make([]changeDTO, len(changes))
	for i, c := range changes {
		out[i] = changeDTO{
			ID:            c.ID,
			CaseNumber:    c.CaseNumber,
			OldSnapshotID: nullString(c.OldSnapshotID),
			NewSnapshotID: nullString(c.NewSnapshotID),
			ChangeType:    string(c.Kind),
			FieldName:     nullString(c.FieldName),
			OldValue:      nullString(c.OldValue),
			NewValue:      c.NewValue,
			DetectedAt:    c.DetectedAt,
		}
	}
	return out
}

func toRecordDTOs(records []model.Record) []recordDTO {
	out := make([]recordDTO, len(records))
	for i, r := range records {
		out[i] = recordDTO{
			ID:           r.ID,
			SnapshotID:   r.SnapshotID,
			Month:        r.Period,
			CaseNumber:   r.CaseNumber,
			UserID:       r.ExternalID,
			VisaType:     r.VisaType,
			VisaEntry:    r.VisaEntry,
			Consulate:    r.Consulate,
			Major:        r.Major,
			Status:       r.Status,
			CheckDate:    nullString(r.CheckDate),
			CompleteDate: nullString(r.CompleteDate),
			DetailsLink:  r.DetailsLink,
			HasNotes:     r.HasNotes,
			Note:         r.Note,
			Details:      r.Details,
			CreatedAt:    r.CreatedAt,
		}
		if r.WaitingDays.Valid {
			days := r.WaitingDays.Int64
			out[i].WaitingDays = &days
		}
	}
	return out
}
