package scraper

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/jjenkins/visawatch/internal/model"
)

const (
	monthLinkMarker  = "main.php?dispdate="
	minTableCells    = 10
	maxNoteFragments = 5
	minNoteLength    = 30
	noteSeparator    = " | "
)

var dispdatePattern = regexp.MustCompile(`dispdate=(\d{4}-\d{2})`)

// Fragments of page chrome that never belong to a case note.
var noteStopWords = []string{"home", "add your case", "tracker", "update", "id", "visa type"}

// MonthLink points at one monthly listing page
type MonthLink struct {
	Period string `json:"month"`
	URL    string `json:"url"`
	Text   string `json:"text"`
}

// ParseMonthLinks returns the monthly listing links found on the homepage,
// deduplicated by period and sorted newest first.
func ParseMonthLinks(doc *goquery.Document, base *url.URL) []MonthLink {
	var links []MonthLink
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if !strings.Contains(href, monthLinkMarker) {
			return
		}
		m := dispdatePattern.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		seen[m[1]] = true

		links = append(links, MonthLink{
			Period: m[1],
			URL:    resolve(base, href),
			Text:   strings.TrimSpace(a.Text()),
		})
	})

	slices.SortStableFunc(links, func(a, b MonthLink) int {
		return strings.Compare(b.Period, a.Period)
	})
	return links
}

// ParseMonthlyRecords extracts the case rows of a monthly listing page.
// Only tables whose header names the ID, Visa Type and Status columns are read.
func ParseMonthlyRecords(doc *goquery.Document, base *url.URL) []model.RawRecord {
	var records []model.RawRecord

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		if !isCaseTable(rows.First()) {
			return
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() < minTableCells {
				return
			}
			records = append(records, parseCaseRow(cells, base))
		})
	})

	return records
}

func isCaseTable(header *goquery.Selection) bool {
	var headers []string
	header.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, selectionText(cell))
	})
	return len(headers) >= minTableCells &&
		slices.Contains(headers, "ID") &&
		slices.Contains(headers, "Visa Type") &&
		slices.Contains(headers, "Status")
}

// Columns: Update, ID, Visa Type, Visa Entry, US Consulate, Major, Status,
// Check Date, Complete Date, Waiting Day(s), Details.
func parseCaseRow(cells *goquery.Selection, base *url.URL) model.RawRecord {
	text := make([]string, cells.Length())
	cells.Each(func(i int, cell *goquery.Selection) {
		text[i] = selectionText(cell)
	})

	rec := model.RawRecord{
		ExternalID:   text[1],
		VisaType:     text[2],
		VisaEntry:    text[3],
		Consulate:    text[4],
		Major:        text[5],
		Status:       text[6],
		CheckDate:    text[7],
		CompleteDate: text[8],
		WaitingDays:  text[9],
	}

	if cells.Length() <= minTableCells {
		return rec
	}

	details := cells.Last()
	link := details.Find("a[href]").First()
	if link.Length() == 0 {
		return rec
	}
	href := link.AttrOr("href", "")
	if !strings.Contains(href, "personal_detail.php") && !strings.Contains(strings.ToLower(href), "detail") {
		return rec
	}

	rec.DetailsLink = resolve(base, href)
	details.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if strings.Contains(img.AttrOr("src", ""), "notes.png") {
			rec.HasNotes = true
			return false
		}
		return true
	})
	rec.Note = link.AttrOr("title", "")

	return rec
}

// ParseCaseDetails collects the free-text notes of a case details page.
// At most five fragments are kept, joined by " | ".
func ParseCaseDetails(doc *goquery.Document) string {
	var notes []string

	doc.Find("table, div, p, td").Each(func(_ int, sel *goquery.Selection) {
		text := selectionText(sel)
		if utf8.RuneCountInString(text) <= minNoteLength || isChrome(text) {
			return
		}
		notes = append(notes, text)
	})

	doc.Find("div[class], td[class]").Each(func(_ int, sel *goquery.Selection) {
		class := strings.ToLower(sel.AttrOr("class", ""))
		if !strings.Contains(class, "note") && !strings.Contains(class, "comment") && !strings.Contains(class, "experience") {
			return
		}
		if text := selectionText(sel); text != "" {
			notes = append(notes, text)
		}
	})

	if len(notes) > maxNoteFragments {
		notes = notes[:maxNoteFragments]
	}
	return strings.Join(notes, noteSeparator)
}

func isChrome(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range noteStopWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
