package model

import (
	"database/sql"
	"regexp"
	"time"
)

// RawRecord is one row as scraped from a monthly listing page
type RawRecord struct {
	ExternalID   string `json:"id"`
	VisaType     string `json:"visa_type"`
	VisaEntry    string `json:"visa_entry"`
	Consulate    string `json:"consulate"`
	Major        string `json:"major"`
	Status       string `json:"status"`
	CheckDate    string `json:"check_date"`
	CompleteDate string `json:"complete_date"`
	WaitingDays  string `json:"waiting_days"`
	DetailsLink  string `json:"details_link"`
	HasNotes     bool   `json:"has_notes"`
	Note         string `json:"note,omitempty"`
	Details      string `json:"details,omitempty"`
	Period       string `json:"month,omitempty"`
}

// Record is a typed row belonging to exactly one Snapshot
type Record struct {
	ID           string
	SnapshotID   string
	Period       string
	Position     int
	ExternalID   string
	CaseNumber   string
	VisaType     string
	VisaEntry    string
	Consulate    string
	Major        string
	Status       string
	CheckDate    sql.NullString
	CompleteDate sql.NullString
	WaitingDays  sql.NullInt64
	DetailsLink  string
	HasNotes     bool
	Note         string
	// Details is the text of the case's details page, when it was fetched
	Details   string
	CreatedAt time.Time
}

// Snapshot represents one scrape of one reporting period
type Snapshot struct {
	ID          string
	Period      string
	RecordCount int
	CreatedAt   time.Time
}

var caseNumberPattern = regexp.MustCompile(`casenum=(\d+)`)

// CaseNumberFromLink extracts the stable case number from a details link.
// It returns "" when the link carries no casenum parameter.
func CaseNumberFromLink(detailsLink string) string {
	if detailsLink == "" {
		return ""
	}
	m := caseNumberPattern.FindStringSubmatch(detailsLink)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// NewRecord converts a scraped row into a Record, applying the default-value
// policy for dates and waiting days.
func NewRecord(raw RawRecord, period string) Record {
	if period == "" {
		period = raw.Period
	}
	return Record{
		Period:       period,
		ExternalID:   raw.ExternalID,
		CaseNumber:   CaseNumberFromLink(raw.DetailsLink),
		VisaType:     raw.VisaType,
		VisaEntry:    raw.VisaEntry,
		Consulate:    raw.Consulate,
		Major:        raw.Major,
		Status:       raw.Status,
		CheckDate:    NormalizeDate(raw.CheckDate),
		CompleteDate: NormalizeDate(raw.CompleteDate),
		WaitingDays:  ParseWaitingDays(raw.WaitingDays),
		DetailsLink:  raw.DetailsLink,
		HasNotes:     raw.HasNotes,
		Note:         raw.Note,
		Details:      raw.Details,
	}
}

// NewRecords converts a page of scraped rows, keeping their order as Position.
func NewRecords(raws []RawRecord, period string) []Record {
	records := make([]Record, len(raws))
	for i, raw := range raws {
		records[i] = NewRecord(raw, period)
		records[i].Position = i
	}
	return records
}
