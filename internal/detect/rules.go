package detect

import (
	"database/sql"
	"strconv"

	"github.com/jjenkins/visawatch/internal/model"
)

// Delta is one field-level difference produced by a Rule
type Delta struct {
	Kind     model.ChangeKind
	Field    string
	OldValue string
	NewValue string
}

// Rule compares one tracked field of two records sharing a case number
type Rule struct {
	Field   string
	Compare func(prev, cur *model.Record) []Delta
}

// rules is evaluated in order; the order only matters for output stability.
var rules = []Rule{
	{Field: "status", Compare: compareStatus},
	{Field: "complete_date", Compare: compareCompleteDate},
	{Field: "waiting_days", Compare: compareWaitingDays},
	{Field: "note", Compare: compareNote},
}

// Rules returns the registered field rules in evaluation order
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify runs every field rule over a matched pair of records.
func Classify(prev, cur *model.Record) []Delta {
	var deltas []Delta
	for _, r := range rules {
		deltas = append(deltas, r.Compare(prev, cur)...)
	}
	return deltas
}

func compareStatus(prev, cur *model.Record) []Delta {
	if prev.Status == cur.Status {
		return nil
	}
	return []Delta{{
		Kind:     model.ChangeStatus,
		Field:    "status",
		OldValue: prev.Status,
		NewValue: cur.Status,
	}}
}

// compareCompleteDate reports completions and corrections. A date that
// disappears is not reported.
func compareCompleteDate(prev, cur *model.Record) []Delta {
	oldDate := completeDate(prev)
	newDate := completeDate(cur)

	if !newDate.Valid {
		return nil
	}
	if oldDate.Valid && oldDate.String == newDate.String {
		return nil
	}
	return []Delta{{
		Kind:     model.ChangeDateUpdate,
		Field:    "complete_date",
		OldValue: model.DisplayDate(oldDate),
		NewValue: newDate.String,
	}}
}

func completeDate(r *model.Record) sql.NullString {
	if !r.CompleteDate.Valid {
		return sql.NullString{}
	}
	return model.NormalizeDate(r.CompleteDate.String)
}

// compareWaitingDays only reports increases. Null counters count as zero,
// so a counter that fails to parse on one side can still fire.
func compareWaitingDays(prev, cur *model.Record) []Delta {
	oldDays := waitingDays(prev)
	newDays := waitingDays(cur)
	if newDays <= oldDays {
		return nil
	}
	return []Delta{{
		Kind:     model.ChangeWaitingDaysUpdate,
		Field:    "waiting_days",
		OldValue: strconv.FormatInt(oldDays, 10),
		NewValue: strconv.FormatInt(newDays, 10),
	}}
}

func waitingDays(r *model.Record) int64 {
	if !r.WaitingDays.Valid {
		return 0
	}
	return r.WaitingDays.Int64
}

func compareNote(prev, cur *model.Record) []Delta {
	switch {
	case cur.Note == "":
		return nil
	case prev.Note == "":
		return []Delta{{
			Kind:     model.ChangeNoteAdded,
			Field:    "note",
			OldValue: "",
			NewValue: model.Truncate(cur.Note),
		}}
	case prev.Note != cur.Note:
		return []Delta{{
			Kind:     model.ChangeNoteUpdated,
			Field:    "note",
			OldValue: model.Truncate(prev.Note),
			NewValue: model.Truncate(cur.Note),
		}}
	}
	return nil
}
