package templates

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/service"
	"github.com/jjenkins/visawatch/internal/store"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestDashboard_NoData(t *testing.T) {
	out := render(t, Dashboard(DashboardData{}))
	require.Contains(t, out, "<title>Dashboard | visawatch</title>")
	require.Contains(t, out, "No data yet")
}

func TestDashboard(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := render(t, Dashboard(DashboardData{
		Stats: &service.Statistics{
			Period:          "2024-02",
			ScrapedAt:       at,
			TotalRecords:    3,
			StatusCounts:    map[string]int{"Pending": 2, "Clear": 1},
			VisaTypeCounts:  map[string]int{"F1": 3},
			ConsulateCounts: map[string]int{"BeiJing": 3},
			WaitingDays:     &store.WaitingDaysSummary{Count: 3, Average: 12.5, Min: 4, Max: 20},
		},
		Changes: []model.Change{{
			CaseNumber: "101",
			Kind:       model.ChangeNoteAdded,
			OldValue:   sql.NullString{Valid: true},
			NewValue:   "<script>alert(1)</script>",
			DetectedAt: at,
		}},
	}))

	require.Contains(t, out, "Month 2024-02")
	require.Contains(t, out, "12.5")
	require.Contains(t, out, "4 / 20")
	require.Contains(t, out, `href="/history/101"`)
	require.Contains(t, out, "note_added")
	require.NotContains(t, out, "<script>alert(1)</script>")
	require.Contains(t, out, "&lt;script&gt;")
	// most frequent status first
	require.Less(t, bytes.Index([]byte(out), []byte("Pending")), bytes.Index([]byte(out), []byte("Clear")))
}

func TestCaseHistory(t *testing.T) {
	records := []model.Record{
		{
			Period:      "2024-01",
			CaseNumber:  "101",
			VisaType:    "F1",
			VisaEntry:   "New",
			Consulate:   "BeiJing",
			Status:      "Pending",
			CheckDate:   sql.NullString{String: "2024-01-03", Valid: true},
			WaitingDays: sql.NullInt64{Int64: 10, Valid: true},
			DetailsLink: "https://www.checkee.info/personal_detail.php?casenum=101",
			CreatedAt:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			Period:       "2024-01",
			CaseNumber:   "101",
			Status:       "Clear",
			CompleteDate: sql.NullString{String: "2024-01-20", Valid: true},
			DetailsLink:  "https://www.checkee.info/personal_detail.php?casenum=101",
			CreatedAt:    time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC),
		},
	}

	out := render(t, CaseHistory("101", records, nil))
	require.Contains(t, out, "Case 101")
	require.Contains(t, out, "personal_detail.php?casenum=101")
	require.Contains(t, out, "2024-01-20")
	require.Contains(t, out, model.NullDisplay)
	require.Contains(t, out, "No changes detected.")

	out = render(t, CaseHistory("999", nil, nil))
	require.Contains(t, out, "has not been seen yet")
}

func TestChanges(t *testing.T) {
	out := render(t, Changes(ChangesData{}))
	require.Contains(t, out, "<title>Changes | visawatch</title>")
	require.Contains(t, out, "Change Detection")
	require.Contains(t, out, "No changes detected.")
	require.NotContains(t, out, "Filtered by")

	out = render(t, Changes(ChangesData{
		Month: "2024-02",
		Kind:  string(model.ChangeStatus),
		Changes: []model.Change{{
			CaseNumber: "101",
			Kind:       model.ChangeStatus,
			OldValue:   sql.NullString{String: "Pending", Valid: true},
			NewValue:   "Clear",
		}},
	}))
	require.Contains(t, out, "Filtered by month 2024-02 and status_change")
	require.Contains(t, out, `href="/history/101"`)
	require.Contains(t, out, "Pending")
}

func TestTrends(t *testing.T) {
	out := render(t, Trends(nil))
	require.Contains(t, out, "No data available.")

	consulates := map[string]int{}
	for i := 0; i < 12; i++ {
		consulates[fmt.Sprintf("C%02d", i)] = 100 - i
	}
	out = render(t, Trends(&service.Statistics{
		Period:          "2024-02",
		TotalRecords:    9,
		StatusCounts:    map[string]int{"Pending": 5, "Clear": 3, "Reject": 1},
		ConsulateCounts: consulates,
	}))
	require.Contains(t, out, `<td class="p-2">2024-02</td><td class="p-2">5</td><td class="p-2">3</td><td class="p-2">1</td><td class="p-2">9</td>`)
	require.Contains(t, out, "C00")
	require.Contains(t, out, "C09")
	// only the ten busiest consulates are listed
	require.NotContains(t, out, "C10")
	require.NotContains(t, out, "C11")
}

func TestForum(t *testing.T) {
	out := render(t, Forum(ForumData{ExcludeApproved: true}))
	require.Contains(t, out, "H1B Worker Forum")
	require.Contains(t, out, "No H1 cases with notes.")
	require.Contains(t, out, `href="/forum?excludeApproved=false"`)

	out = render(t, Forum(ForumData{Records: []model.Record{{
		CaseNumber: "301",
		VisaType:   "H1",
		Consulate:  "Toronto",
		Status:     "Pending",
		CheckDate:  sql.NullString{String: "2024-02-05", Valid: true},
		Note:       "asked for <b>I-797</b>",
	}}}))
	require.Contains(t, out, `href="/forum">Hide cleared cases`)
	require.Contains(t, out, "Case 301</a> Toronto")
	require.Contains(t, out, "Pending, checked 2024-02-05")
	require.Contains(t, out, "asked for &lt;b&gt;I-797&lt;/b&gt;")
}
