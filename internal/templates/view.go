// Package templates holds the server's templ pages. The *_templ.go files are
// generated from the .templ sources with `templ generate`.
package templates

import (
	"sort"
	"strconv"

	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/service"
)

const timeLayout = "2006-01-02 15:04 MST"

const topConsulates = 10

// DashboardData is everything the dashboard shows
type DashboardData struct {
	// Stats is nil when no snapshot has been stored yet
	Stats   *service.Statistics
	Changes []model.Change
}

// ChangesData is the change log and the filters it was listed with
type ChangesData struct {
	Changes []model.Change
	Month   string
	Kind    string
}

// ForumData holds the H1 cases with notes shown on the forum page
type ForumData struct {
	Records         []model.Record
	ExcludeApproved bool
}

type countEntry struct {
	Key   string
	Count int
}

func (e countEntry) Label() string {
	if e.Key == "" {
		return "(blank)"
	}
	return e.Key
}

// sortedCounts orders values by count, most frequent first. limit <= 0 keeps
// every entry.
func sortedCounts(values map[string]int, limit int) []countEntry {
	entries := make([]countEntry, 0, len(values))
	for k, n := range values {
		entries = append(entries, countEntry{Key: k, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func historyURL(caseNumber string) string {
	return "/history/" + caseNumber
}

func oldValue(c model.Change) string {
	if !c.OldValue.Valid {
		return ""
	}
	return c.OldValue.String
}

func waitingDays(r model.Record) string {
	if !r.WaitingDays.Valid {
		return ""
	}
	return strconv.FormatInt(r.WaitingDays.Int64, 10)
}

func filterSummary(data ChangesData) string {
	switch {
	case data.Month != "" && data.Kind != "":
		return "month " + data.Month + " and " + data.Kind
	case data.Month != "":
		return "month " + data.Month
	default:
		return data.Kind
	}
}
