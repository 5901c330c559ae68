package detect

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/visawatch/internal/model"
)

func record(raw model.RawRecord) *model.Record {
	r := model.NewRecord(raw, "2024-01")
	return &r
}

func TestExtractCaseNumber(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://www.checkee.info/personal_detail.php?casenum=844578", "844578"},
		{"./personal_detail.php?casenum=12&x=1", "12"},
		{"https://www.checkee.info/personal_detail.php?casenum=abc", ""},
		{"https://www.checkee.info/personal_detail.php", ""},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ExtractCaseNumber(tt.link), tt.link)
	}
}

func TestRulesOrder(t *testing.T) {
	var fields []string
	for _, r := range Rules() {
		fields = append(fields, r.Field)
	}
	require.Equal(t, []string{"status", "complete_date", "waiting_days", "note"}, fields)
}

func TestClassify_IdenticalRecords(t *testing.T) {
	raw := model.RawRecord{
		Status:       "Clear",
		CompleteDate: "2024-01-02",
		WaitingDays:  "12",
		Note:         "hello",
	}
	require.Empty(t, Classify(record(raw), record(raw)))
}

func TestCompareStatus(t *testing.T) {
	got := Classify(record(model.RawRecord{Status: "Pending"}), record(model.RawRecord{Status: "Clear"}))
	want := []Delta{{Kind: model.ChangeStatus, Field: "status", OldValue: "Pending", NewValue: "Clear"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}

	got = Classify(record(model.RawRecord{}), record(model.RawRecord{Status: "Pending"}))
	want = []Delta{{Kind: model.ChangeStatus, Field: "status", OldValue: "", NewValue: "Pending"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareCompleteDate(t *testing.T) {
	dateUpdate := func(old, new string) []Delta {
		return []Delta{{Kind: model.ChangeDateUpdate, Field: "complete_date", OldValue: old, NewValue: new}}
	}

	tests := []struct {
		name string
		old  string
		new  string
		want []Delta
	}{
		{"both null", "", "", nil},
		{"completion", "", "2024-01-02", dateUpdate("None", "2024-01-02")},
		{"regression is silent", "2024-01-02", "", nil},
		{"correction", "2024-01-02", "2024-01-03", dateUpdate("2024-01-02", "2024-01-03")},
		{"unchanged", "2024-01-02", "2024-01-02", nil},
		{"sentinel is null", model.NoDateSentinel, "2024-01-02", dateUpdate("None", "2024-01-02")},
		{"sentinel both sides", model.NoDateSentinel, model.NoDateSentinel, nil},
		{"invalid date is null", "2024-13-45", "2024-01-02", dateUpdate("None", "2024-01-02")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareCompleteDate(
				record(model.RawRecord{CompleteDate: tt.old}),
				record(model.RawRecord{CompleteDate: tt.new}),
			)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("compareCompleteDate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompareCompleteDate_UnnormalizedStoredSentinel(t *testing.T) {
	prev := &model.Record{}
	prev.CompleteDate.String = model.NoDateSentinel
	prev.CompleteDate.Valid = true

	got := compareCompleteDate(prev, record(model.RawRecord{CompleteDate: "2024-01-02"}))
	require.Len(t, got, 1)
	require.Equal(t, "None", got[0].OldValue)
}

func TestCompareWaitingDays(t *testing.T) {
	waitingUpdate := func(old, new string) []Delta {
		return []Delta{{Kind: model.ChangeWaitingDaysUpdate, Field: "waiting_days", OldValue: old, NewValue: new}}
	}

	tests := []struct {
		name string
		old  string
		new  string
		want []Delta
	}{
		{"increase", "5", "10", waitingUpdate("5", "10")},
		{"decrease is silent", "10", "5", nil},
		{"unchanged", "7", "7", nil},
		// unparseable counters default to zero on either side
		{"unparseable old defaults to zero", "abc", "7", waitingUpdate("0", "7")},
		{"unparseable new defaults to zero", "7", "abc", nil},
		{"absent old", "", "3", waitingUpdate("0", "3")},
		{"both absent", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareWaitingDays(
				record(model.RawRecord{WaitingDays: tt.old}),
				record(model.RawRecord{WaitingDays: tt.new}),
			)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("compareWaitingDays() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompareNote(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []Delta
	}{
		{"added", "", "hello", []Delta{{Kind: model.ChangeNoteAdded, Field: "note", OldValue: "", NewValue: "hello"}}},
		{"unchanged", "hello", "hello", nil},
		{"updated", "hello", "world", []Delta{{Kind: model.ChangeNoteUpdated, Field: "note", OldValue: "hello", NewValue: "world"}}},
		{"removed is silent", "hello", "", nil},
		{"both empty", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareNote(
				record(model.RawRecord{Note: tt.old}),
				record(model.RawRecord{Note: tt.new}),
			)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("compareNote() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompareNote_Truncates(t *testing.T) {
	prevNote := strings.Repeat("a", 300)
	curNote := strings.Repeat("b", 300)

	got := compareNote(record(model.RawRecord{Note: prevNote}), record(model.RawRecord{Note: curNote}))
	require.Len(t, got, 1)
	require.Equal(t, model.ChangeNoteUpdated, got[0].Kind)
	require.Len(t, got[0].OldValue, model.MaxValueLength)
	require.Len(t, got[0].NewValue, model.MaxValueLength)

	got = compareNote(record(model.RawRecord{}), record(model.RawRecord{Note: curNote}))
	require.Len(t, got, 1)
	require.Len(t, got[0].NewValue, model.MaxValueLength)
}

func TestClassify_MultipleFields(t *testing.T) {
	got := Classify(
		record(model.RawRecord{Status: "Pending", WaitingDays: "3"}),
		record(model.RawRecord{Status: "Clear", CompleteDate: "2024-02-01", WaitingDays: "4", Note: "done"}),
	)

	var kinds []model.ChangeKind
	for _, d := range got {
		kinds = append(kinds, d.Kind)
	}
	require.Equal(t, []model.ChangeKind{
		model.ChangeStatus,
		model.ChangeDateUpdate,
		model.ChangeWaitingDaysUpdate,
		model.ChangeNoteAdded,
	}, kinds)
}
