package service

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/scraper"
	"github.com/jjenkins/visawatch/internal/store"
)

type fakeScraper struct {
	links   []scraper.MonthLink
	pages   map[string][]model.RawRecord
	failing map[string]error
	details map[string]string

	warmups        atomic.Int32
	monthLinkCalls atomic.Int32
}

func (f *fakeScraper) Warmup(ctx context.Context) {
	f.warmups.Add(1)
}

func (f *fakeScraper) MonthLinks(ctx context.Context) ([]scraper.MonthLink, error) {
	f.monthLinkCalls.Add(1)
	return append([]scraper.MonthLink(nil), f.links...), nil
}

func (f *fakeScraper) MonthlyRecords(ctx context.Context, link scraper.MonthLink) ([]model.RawRecord, error) {
	if err := f.failing[link.Period]; err != nil {
		return nil, err
	}
	return append([]model.RawRecord(nil), f.pages[link.Period]...), nil
}

func (f *fakeScraper) CaseDetails(ctx context.Context, detailsLink string) (string, error) {
	d, ok := f.details[detailsLink]
	if !ok {
		return "", errors.New("details unavailable")
	}
	return d, nil
}

func raw(caseNumber, status string) model.RawRecord {
	return model.RawRecord{
		ExternalID:   "user-" + caseNumber,
		VisaType:     "F1",
		VisaEntry:    "New",
		Consulate:    "BeiJing",
		Major:        "CS",
		Status:       status,
		CheckDate:    "2024-01-03",
		CompleteDate: model.NoDateSentinel,
		WaitingDays:  "10",
		DetailsLink:  "https://www.checkee.info/personal_detail.php?casenum=" + caseNumber,
	}
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{
		links: []scraper.MonthLink{
			{Period: "2024-02", URL: "https://www.checkee.info/main.php?dispdate=2024-02"},
			{Period: "2024-01", URL: "https://www.checkee.info/main.php?dispdate=2024-01"},
		},
		pages: map[string][]model.RawRecord{
			"2024-02": {raw("201", "Pending"), raw("202", "Pending")},
			"2024-01": {raw("101", "Pending")},
		},
	}
}

type fixture struct {
	db        *store.DB
	scraper   *fakeScraper
	snapshots *store.SnapshotStore
	changes   *store.ChangeStore
	importer  *Importer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})

	f := &fixture{
		db:        db,
		scraper:   newFakeScraper(),
		snapshots: store.NewSnapshotStore(db),
		changes:   store.NewChangeStore(db),
	}
	f.importer = NewImporter(f.scraper, f.snapshots)
	return f
}

func TestImport_FirstRunRecordsNewCases(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stats, err := f.importer.Import(ctx, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Periods)
	require.Equal(t, 2, stats.Imported)
	require.Equal(t, 3, stats.Records)
	require.Equal(t, 3, stats.Changes)
	require.Equal(t, 3, stats.ByKind[model.ChangeNewRecord])
	require.Equal(t, int32(1), f.scraper.warmups.Load())

	snap, err := f.snapshots.GetLatestSnapshot(ctx, "2024-02")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, 2, snap.RecordCount)

	changes, err := f.changes.ListChanges(ctx, store.ChangeFilter{Period: "2024-02"})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, c := range changes {
		require.Equal(t, model.ChangeNewRecord, c.Kind)
		require.False(t, c.OldSnapshotID.Valid)
		require.Equal(t, snap.ID, c.NewSnapshotID.String)
	}
}

func TestImport_SecondRunDetectsChanges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.importer.Import(ctx, ImportOptions{Month: "2024-02"})
	require.NoError(t, err)
	first, err := f.snapshots.GetLatestSnapshot(ctx, "2024-02")
	require.NoError(t, err)

	updated := raw("201", "Clear")
	updated.CompleteDate = "2024-02-20"
	f.scraper.pages["2024-02"] = []model.RawRecord{updated, raw("202", "Pending"), raw("203", "Pending")}

	stats, err := f.importer.Import(ctx, ImportOptions{Month: "2024-02"})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Periods)
	require.Equal(t, 3, stats.Changes)
	require.Equal(t, 1, stats.ByKind[model.ChangeStatus])
	require.Equal(t, 1, stats.ByKind[model.ChangeDateUpdate])
	require.Equal(t, 1, stats.ByKind[model.ChangeNewRecord])

	result := stats.Results[0]
	require.NotEqual(t, first.ID, result.SnapshotID)
	for _, c := range result.Changes {
		require.Equal(t, first.ID, c.OldSnapshotID.String)
		require.Equal(t, result.SnapshotID, c.NewSnapshotID.String)
	}

	status, err := f.changes.ListChanges(ctx, store.ChangeFilter{Kind: model.ChangeStatus})
	require.NoError(t, err)
	require.Len(t, status, 1)
	require.Equal(t, "201", status[0].CaseNumber)
	require.Equal(t, "Pending", status[0].OldValue.String)
	require.Equal(t, "Clear", status[0].NewValue)

	// unchanged rescrape yields nothing new
	stats, err = f.importer.Import(ctx, ImportOptions{Month: "2024-02"})
	require.NoError(t, err)
	require.Zero(t, stats.Changes)
}

func TestImport_DryRunPersistsNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stats, err := f.importer.Import(ctx, ImportOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Changes)
	require.Empty(t, stats.Results[0].SnapshotID)
	require.False(t, stats.Results[0].Changes[0].NewSnapshotID.Valid)

	snap, err := f.snapshots.GetLatestSnapshot(ctx, "")
	require.NoError(t, err)
	require.Nil(t, snap)

	changes, err := f.changes.ListChanges(ctx, store.ChangeFilter{})
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestImport_SkipChanges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stats, err := f.importer.Import(ctx, ImportOptions{SkipChanges: true})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Imported)
	require.Zero(t, stats.Changes)

	snaps, err := f.snapshots.ListSnapshots(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	changes, err := f.changes.ListChanges(ctx, store.ChangeFilter{})
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestImport_MonthNotFound(t *testing.T) {
	f := setup(t)

	_, err := f.importer.Import(context.Background(), ImportOptions{Month: "1999-01"})
	require.ErrorIs(t, err, ErrMonthNotFound)
}

func TestImport_Limit(t *testing.T) {
	f := setup(t)

	stats, err := f.importer.Import(context.Background(), ImportOptions{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Periods)
	require.Equal(t, "2024-02", stats.Results[0].Period)
}

func TestImport_FailingPeriodDoesNotStopOthers(t *testing.T) {
	f := setup(t)
	f.scraper.failing = map[string]error{"2024-02": errors.New("boom")}
	f.scraper.links = append(f.scraper.links, scraper.MonthLink{Period: "2023-12"})

	stats, err := f.importer.Import(context.Background(), ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Periods)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Imported)
	require.Equal(t, 1, stats.Skipped)
	require.EqualError(t, stats.Results[0].Err, "boom")
}

func TestImport_Cancelled(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.importer.Import(ctx, ImportOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, stats.Imported)
}

func TestScrape_IncludesDetails(t *testing.T) {
	f := setup(t)
	f.scraper.details = map[string]string{
		"https://www.checkee.info/personal_detail.php?casenum=201": "cleared after interview",
	}

	rows, err := f.importer.Scrape(context.Background(), ImportOptions{IncludeDetails: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "2024-02", rows[0].Period)
	require.Equal(t, "cleared after interview", rows[0].Details)
	// a failed details fetch leaves the row without details
	require.Empty(t, rows[1].Details)
	require.Equal(t, "2024-01", rows[2].Period)

	snap, err := f.snapshots.GetLatestSnapshot(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestImport_StoresDetails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.scraper.details = map[string]string{
		"https://www.checkee.info/personal_detail.php?casenum=201": "cleared after interview",
	}

	_, err := f.importer.Import(ctx, ImportOptions{Month: "2024-02", IncludeDetails: true})
	require.NoError(t, err)

	history, err := f.snapshots.GetRecordsByCaseNumber(ctx, "201")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "cleared after interview", history[0].Details)
}

func TestImportPeriod_FailedChangeWriteKeepsNoSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.db.ExecContext(ctx, "DROP TABLE changes")
	require.NoError(t, err)

	_, err = f.importer.ImportPeriod(ctx, "2024-02", []model.RawRecord{raw("201", "Pending")}, ImportOptions{})
	require.Error(t, err)

	// the next run must still compare against the previous baseline
	snap, err := f.snapshots.GetLatestSnapshot(ctx, "2024-02")
	require.NoError(t, err)
	require.Nil(t, snap)

	records, err := f.snapshots.GetRecordsByCaseNumber(ctx, "201")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.importer.Run(ctx, 10*time.Millisecond, ImportOptions{Month: "2024-01"})
	}()

	require.Eventually(t, func() bool {
		return f.scraper.monthLinkCalls.Load() >= 2
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestPrintSummary(t *testing.T) {
	f := setup(t)

	stats, err := f.importer.Import(context.Background(), ImportOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintSummary(&buf, stats)
	out := buf.String()
	require.Contains(t, out, "2024-02")
	require.Contains(t, out, "2024-01")
	require.Contains(t, out, "new_record")
}
