package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jjenkins/visawatch/internal/detect"
	"github.com/jjenkins/visawatch/internal/logging"
	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/scraper"
	"github.com/jjenkins/visawatch/internal/store"
)

// ErrMonthNotFound is returned when a requested period is not listed on the site
var ErrMonthNotFound = errors.New("month not found")

// Scraper is the listing site as the importer sees it
type Scraper interface {
	Warmup(ctx context.Context)
	MonthLinks(ctx context.Context) ([]scraper.MonthLink, error)
	MonthlyRecords(ctx context.Context, link scraper.MonthLink) ([]model.RawRecord, error)
	CaseDetails(ctx context.Context, detailsLink string) (string, error)
}

// ImportOptions selects what an import run covers
type ImportOptions struct {
	// Month restricts the run to one period (YYYY-MM)
	Month string
	// Limit keeps only the newest N periods; 0 means all
	Limit int
	// SkipChanges stores snapshots without detecting changes
	SkipChanges bool
	// DryRun detects changes but persists nothing
	DryRun bool
	// IncludeDetails also fetches each case's details page
	IncludeDetails bool
}

// PeriodResult is the outcome of importing one period
type PeriodResult struct {
	Period     string
	Records    int
	SnapshotID string
	Changes    []model.Change
	Err        error
}

// ImportStats tracks import statistics
type ImportStats struct {
	Periods  int
	Imported int
	Skipped  int
	Failed   int
	Records  int
	Changes  int
	ByKind   map[model.ChangeKind]int
	Results  []PeriodResult
	Duration time.Duration
}

func newImportStats() *ImportStats {
	return &ImportStats{ByKind: make(map[model.ChangeKind]int)}
}

// Importer orchestrates scraping, change detection and persistence
type Importer struct {
	scraper   Scraper
	detector  *detect.Detector
	snapshots *store.SnapshotStore
}

// NewImporter creates a new Importer
func NewImporter(s Scraper, snapshots *store.SnapshotStore) *Importer {
	return &Importer{
		scraper:   s,
		detector:  detect.NewDetector(snapshots),
		snapshots: snapshots,
	}
}

// Import scrapes the selected periods and records a snapshot and its
// changes for each. A failing period is logged and counted; the others
// still run.
func (i *Importer) Import(ctx context.Context, opts ImportOptions) (*ImportStats, error) {
	start := time.Now()
	stats := newImportStats()

	links, err := i.links(ctx, opts)
	if err != nil {
		return nil, err
	}
	stats.Periods = len(links)

	for idx, link := range links {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		logger := logging.WithFields(ctx, "period", link.Period, "progress", fmt.Sprintf("%d/%d", idx+1, len(links)))
		logger.Info("scraping period")

		raws, err := i.collect(ctx, link, opts)
		if err != nil {
			logger.Error("failed to scrape period", "error", err)
			stats.Failed++
			stats.Results = append(stats.Results, PeriodResult{Period: link.Period, Err: err})
			continue
		}
		if len(raws) == 0 {
			logger.Warn("no records found, skipping")
			stats.Skipped++
			continue
		}

		result, err := i.ImportPeriod(ctx, link.Period, raws, opts)
		if err != nil {
			logger.Error("failed to import period", "error", err)
			stats.Failed++
			stats.Results = append(stats.Results, PeriodResult{Period: link.Period, Records: len(raws), Err: err})
			continue
		}

		stats.Imported++
		stats.Records += result.Records
		stats.Changes += len(result.Changes)
		for kind, n := range model.CountByKind(result.Changes) {
			stats.ByKind[kind] += n
		}
		stats.Results = append(stats.Results, *result)

		logger.Info("period imported",
			"records", result.Records,
			"changes", len(result.Changes),
			"snapshot_id", result.SnapshotID,
		)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// ImportPeriod detects changes for one period's rows against the latest
// stored snapshot, then stores the new snapshot and the changes in one
// transaction. Detection runs before the snapshot is saved so the baseline is the
// previous scrape.
func (i *Importer) ImportPeriod(ctx context.Context, period string, raws []model.RawRecord, opts ImportOptions) (*PeriodResult, error) {
	records := model.NewRecords(raws, period)
	result := &PeriodResult{Period: period, Records: len(records)}

	if !opts.SkipChanges {
		changes, err := i.detector.DetectChanges(ctx, records, period)
		if err != nil {
			return nil, fmt.Errorf("failed to detect changes: %w", err)
		}
		result.Changes = changes
	}

	if opts.DryRun {
		return result, nil
	}

	snap, err := i.snapshots.SaveSnapshotWithChanges(ctx, period, records, result.Changes)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	result.SnapshotID = snap.ID

	return result, nil
}

// Scrape fetches the selected periods without touching the store
func (i *Importer) Scrape(ctx context.Context, opts ImportOptions) ([]model.RawRecord, error) {
	links, err := i.links(ctx, opts)
	if err != nil {
		return nil, err
	}

	var all []model.RawRecord
	for idx, link := range links {
		slog.InfoContext(ctx, "scraping period", "period", link.Period, "progress", fmt.Sprintf("%d/%d", idx+1, len(links)))
		raws, err := i.collect(ctx, link, opts)
		if err != nil {
			return all, err
		}
		all = append(all, raws...)
	}
	return all, nil
}

// Run imports now and then every interval until ctx is cancelled.
// Runs never overlap.
func (i *Importer) Run(ctx context.Context, interval time.Duration, opts ImportOptions) {
	slog.Info("watch scheduler started", "interval", interval.String(), "month", opts.Month, "limit", opts.Limit)

	i.runOnce(ctx, opts)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch scheduler stopped")
			return
		case <-ticker.C:
			i.runOnce(ctx, opts)
		}
	}
}

func (i *Importer) runOnce(ctx context.Context, opts ImportOptions) {
	stats, err := i.Import(ctx, opts)
	if err != nil {
		slog.Error("import run failed", "error", err)
		return
	}
	slog.Info("import run completed",
		"periods", stats.Periods,
		"imported", stats.Imported,
		"failed", stats.Failed,
		"changes", stats.Changes,
		"duration_ms", stats.Duration.Milliseconds(),
	)
}

// links resolves the month links an import run covers
func (i *Importer) links(ctx context.Context, opts ImportOptions) ([]scraper.MonthLink, error) {
	i.scraper.Warmup(ctx)

	links, err := i.scraper.MonthLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch month links: %w", err)
	}

	if opts.Month != "" {
		for _, l := range links {
			if l.Period == opts.Month {
				return []scraper.MonthLink{l}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrMonthNotFound, opts.Month)
	}

	if opts.Limit > 0 && opts.Limit < len(links) {
		links = links[:opts.Limit]
	}
	return links, nil
}

// collect scrapes one period, optionally with each case's details page
func (i *Importer) collect(ctx context.Context, link scraper.MonthLink, opts ImportOptions) ([]model.RawRecord, error) {
	raws, err := i.scraper.MonthlyRecords(ctx, link)
	if err != nil {
		return nil, err
	}
	for idx := range raws {
		if raws[idx].Period == "" {
			raws[idx].Period = link.Period
		}
	}

	if !opts.IncludeDetails {
		return raws, nil
	}
	for idx := range raws {
		if raws[idx].DetailsLink == "" {
			continue
		}
		details, err := i.scraper.CaseDetails(ctx, raws[idx].DetailsLink)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "failed to fetch case details", "id", raws[idx].ExternalID, "error", err)
			continue
		}
		raws[idx].Details = details
	}
	return raws, nil
}

// PrintSummary renders the import statistics as a table
func PrintSummary(w io.Writer, stats *ImportStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Import Summary")
	t.AppendHeader(table.Row{"Period", "Records", "Changes", "Snapshot", "Error"})

	for _, r := range stats.Results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Period, r.Records, len(r.Changes), r.SnapshotID, errText})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d periods", stats.Periods),
		stats.Records,
		stats.Changes,
		fmt.Sprintf("%d imported, %d skipped", stats.Imported, stats.Skipped),
		fmt.Sprintf("%d failed", stats.Failed),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if stats.Changes == 0 {
		return
	}

	kinds := table.NewWriter()
	kinds.SetOutputMirror(w)
	kinds.AppendHeader(table.Row{"Change", "Count"})
	for _, k := range model.ChangeKinds {
		if n := stats.ByKind[k]; n > 0 {
			kinds.AppendRow(table.Row{string(k), n})
		}
	}
	kinds.SetStyle(table.StyleRounded)
	kinds.Render()
}
