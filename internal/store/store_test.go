package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjenkins/visawatch/internal/model"
)

// setupDB opens a migrated in-memory database whose clock advances one
// minute per call, so snapshot ordering is deterministic.
func setupDB(t *testing.T) *DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	// migrations are idempotent
	require.NoError(t, db.Migrate(ctx))

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	return db
}

func rawRows(caseNumbers ...string) []model.RawRecord {
	rows := make([]model.RawRecord, len(caseNumbers))
	for i, cn := range caseNumbers {
		rows[i] = model.RawRecord{
			ExternalID:   "user-" + cn,
			VisaType:     "F1",
			VisaEntry:    "New",
			Consulate:    "BeiJing",
			Major:        "CS",
			Status:       "Pending",
			CheckDate:    "2024-01-05",
			CompleteDate: model.NoDateSentinel,
			WaitingDays:  "12",
			DetailsLink:  "https://www.checkee.info/personal_detail.php?casenum=" + cn,
			HasNotes:     cn == "2",
		}
	}
	return rows
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		driver  string
		source  string
		dialect dialect
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "postgres", "postgres://u:p@localhost:5432/db?sslmode=disable", dialectPostgres},
		{"postgresql://localhost/db", "postgres", "postgresql://localhost/db", dialectPostgres},
		{"libsql://visawatch.turso.io?authToken=x", "libsql", "libsql://visawatch.turso.io?authToken=x", dialectSQLite},
		{"sqlite://data/visawatch.db", "sqlite", "data/visawatch.db", dialectSQLite},
		{"file:visawatch.db?cache=shared", "sqlite", "file:visawatch.db?cache=shared", dialectSQLite},
		{":memory:", "sqlite", ":memory:", dialectSQLite},
	}
	for _, tt := range tests {
		driver, source, d, err := parseDSN(tt.dsn)
		require.NoError(t, err, tt.dsn)
		require.Equal(t, tt.driver, driver, tt.dsn)
		require.Equal(t, tt.source, source, tt.dsn)
		require.Equal(t, tt.dialect, d, tt.dsn)
	}

	_, _, _, err := parseDSN("mysql://localhost/db")
	require.ErrorIs(t, err, ErrUnsupportedDSN)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"))

	lite := &DB{dialect: dialectSQLite}
	require.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestWhereBuilder(t *testing.T) {
	w := newWhereBuilder()
	clause, args := w.Build()
	require.Empty(t, clause)
	require.Nil(t, args)

	w.Add("status", "Clear")
	w.Add("consulate", "")
	w.AddRaw("detected_at >= ?", "2024-01-01")
	clause, args = w.Build()
	require.Equal(t, " WHERE status = ? AND detected_at >= ?", clause)
	require.Equal(t, []any{"Clear", "2024-01-01"}, args)
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	ctx := context.Background()

	latest, err := snapshots.GetLatestSnapshot(ctx, "2024-01")
	require.NoError(t, err)
	require.Nil(t, latest)

	records := model.NewRecords(rawRows("1", "2", "3"), "2024-01")
	snap, err := snapshots.SaveSnapshot(ctx, "2024-01", records)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	require.Equal(t, 3, snap.RecordCount)

	latest, err = snapshots.GetLatestSnapshot(ctx, "2024-01")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, snap.ID, latest.ID)
	require.True(t, snap.CreatedAt.Equal(latest.CreatedAt))

	stored, err := snapshots.GetRecordsBySnapshot(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	first := stored[0]
	require.Equal(t, snap.ID, first.SnapshotID)
	require.Equal(t, "1", first.CaseNumber)
	require.Equal(t, "user-1", first.ExternalID)
	require.Equal(t, "2024-01", first.Period)
	require.Equal(t, sql.NullString{String: "2024-01-05", Valid: true}, first.CheckDate)
	require.False(t, first.CompleteDate.Valid)
	require.Equal(t, sql.NullInt64{Int64: 12, Valid: true}, first.WaitingDays)
	require.False(t, first.HasNotes)
	require.True(t, stored[1].HasNotes)
	require.Equal(t, []int{0, 1, 2}, []int{stored[0].Position, stored[1].Position, stored[2].Position})
}

func TestSnapshotStore_LatestPerPeriod(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	ctx := context.Background()

	jan1, err := snapshots.SaveSnapshot(ctx, "2024-01", model.NewRecords(rawRows("1"), "2024-01"))
	require.NoError(t, err)
	feb, err := snapshots.SaveSnapshot(ctx, "2024-02", model.NewRecords(rawRows("9"), "2024-02"))
	require.NoError(t, err)
	jan2, err := snapshots.SaveSnapshot(ctx, "2024-01", model.NewRecords(rawRows("1", "2"), "2024-01"))
	require.NoError(t, err)

	latest, err := snapshots.GetLatestSnapshot(ctx, "2024-01")
	require.NoError(t, err)
	require.Equal(t, jan2.ID, latest.ID)

	latest, err = snapshots.GetLatestSnapshot(ctx, "2024-02")
	require.NoError(t, err)
	require.Equal(t, feb.ID, latest.ID)

	latest, err = snapshots.GetLatestSnapshot(ctx, "")
	require.NoError(t, err)
	require.Equal(t, jan2.ID, latest.ID)

	list, err := snapshots.ListSnapshots(ctx, "2024-01", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, jan2.ID, list[0].ID)
	require.Equal(t, jan1.ID, list[1].ID)

	list, err = snapshots.ListSnapshots(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSnapshotStore_History(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	ctx := context.Background()

	first, err := snapshots.SaveSnapshot(ctx, "2024-01", model.NewRecords(rawRows("1", "2"), "2024-01"))
	require.NoError(t, err)

	rows := rawRows("1")
	rows[0].Status = "Clear"
	second, err := snapshots.SaveSnapshot(ctx, "2024-01", model.NewRecords(rows, "2024-01"))
	require.NoError(t, err)

	history, err := snapshots.GetRecordsByCaseNumber(ctx, "1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, first.ID, history[0].SnapshotID)
	require.Equal(t, "Pending", history[0].Status)
	require.Equal(t, second.ID, history[1].SnapshotID)
	require.Equal(t, "Clear", history[1].Status)

	history, err = snapshots.GetRecordsByCaseNumber(ctx, "404")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSnapshotStore_ListRecords(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	ctx := context.Background()

	rows := rawRows("1", "2", "3")
	rows[1].Consulate = "ShangHai"
	rows[2].Status = "Clear"
	snap, err := snapshots.SaveSnapshot(ctx, "2024-01", model.NewRecords(rows, "2024-01"))
	require.NoError(t, err)

	got, err := snapshots.ListRecords(ctx, snap.ID, RecordFilter{Consulate: "BeiJing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = snapshots.ListRecords(ctx, snap.ID, RecordFilter{Consulate: "BeiJing", Status: "Clear"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "3", got[0].CaseNumber)

	got, err = snapshots.ListRecords(ctx, snap.ID, RecordFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].CaseNumber)
}

func TestChangeStore_SaveAndList(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	changes := NewChangeStore(db)
	ctx := context.Background()

	require.NoError(t, changes.SaveChanges(ctx, nil))

	jan, err := snapshots.SaveSnapshot(ctx, "2024-01", model.NewRecords(rawRows("1"), "2024-01"))
	require.NoError(t, err)
	feb, err := snapshots.SaveSnapshot(ctx, "2024-02", model.NewRecords(rawRows("5"), "2024-02"))
	require.NoError(t, err)

	janChanges := []model.Change{
		{CaseNumber: "1", Kind: model.ChangeNewRecord, NewValue: "New record: user-1"},
	}
	model.AssignSnapshot(janChanges, jan.ID)
	require.NoError(t, changes.SaveChanges(ctx, janChanges))
	require.NotEmpty(t, janChanges[0].ID)
	require.False(t, janChanges[0].DetectedAt.IsZero())

	febChanges := []model.Change{
		{
			CaseNumber:    "5",
			OldSnapshotID: sql.NullString{String: jan.ID, Valid: true},
			Kind:          model.ChangeStatus,
			FieldName:     sql.NullString{String: "status", Valid: true},
			OldValue:      sql.NullString{String: "Pending", Valid: true},
			NewValue:      "Clear",
		},
		{
			CaseNumber: "6",
			Kind:       model.ChangeNewRecord,
			NewValue:   "New record: user-6",
		},
	}
	model.AssignSnapshot(febChanges, feb.ID)
	require.NoError(t, changes.SaveChanges(ctx, febChanges))

	all, err := changes.ListChanges(ctx, ChangeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// newest batch first
	require.Equal(t, "5", all[0].CaseNumber)
	require.Equal(t, "1", all[2].CaseNumber)
	require.Equal(t, model.ChangeStatus, all[0].Kind)
	require.Equal(t, sql.NullString{String: "status", Valid: true}, all[0].FieldName)
	require.Equal(t, sql.NullString{String: "Pending", Valid: true}, all[0].OldValue)
	require.False(t, all[2].OldSnapshotID.Valid)
	require.False(t, all[2].FieldName.Valid)
	require.False(t, all[2].OldValue.Valid)

	byPeriod, err := changes.ListChanges(ctx, ChangeFilter{Period: "2024-01"})
	require.NoError(t, err)
	require.Len(t, byPeriod, 1)
	require.Equal(t, "1", byPeriod[0].CaseNumber)

	byKind, err := changes.ListChanges(ctx, ChangeFilter{Kind: model.ChangeNewRecord})
	require.NoError(t, err)
	require.Len(t, byKind, 2)

	byCase, err := changes.ListChanges(ctx, ChangeFilter{CaseNumber: "6"})
	require.NoError(t, err)
	require.Len(t, byCase, 1)

	since, err := changes.ListChanges(ctx, ChangeFilter{Since: febChanges[0].DetectedAt})
	require.NoError(t, err)
	require.Len(t, since, 2)

	limited, err := changes.ListChanges(ctx, ChangeFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSnapshotStore_SaveWithChanges(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	changeStore := NewChangeStore(db)
	ctx := context.Background()

	rows := rawRows("1")
	rows[0].Details = "interviewed in January"
	changes := []model.Change{
		{CaseNumber: "1", Kind: model.ChangeNewRecord, NewValue: "New record: user-1"},
	}
	snap, err := snapshots.SaveSnapshotWithChanges(ctx, "2024-01", model.NewRecords(rows, "2024-01"), changes)
	require.NoError(t, err)
	require.Equal(t, sql.NullString{String: snap.ID, Valid: true}, changes[0].NewSnapshotID)
	require.NotEmpty(t, changes[0].ID)

	stored, err := changeStore.ListChanges(ctx, ChangeFilter{Period: "2024-01"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, snap.ID, stored[0].NewSnapshotID.String)

	records, err := snapshots.GetRecordsBySnapshot(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, "interviewed in January", records[0].Details)
}

func TestSnapshotStore_SaveWithChangesRollsBack(t *testing.T) {
	db := setupDB(t)
	snapshots := NewSnapshotStore(db)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "DROP TABLE changes")
	require.NoError(t, err)

	changes := []model.Change{
		{CaseNumber: "1", Kind: model.ChangeNewRecord, NewValue: "New record: user-1"},
	}
	_, err = snapshots.SaveSnapshotWithChanges(ctx, "2024-01", model.NewRecords(rawRows("1"), "2024-01"), changes)
	require.Error(t, err)

	snap, err := snapshots.GetLatestSnapshot(ctx, "2024-01")
	require.NoError(t, err)
	require.Nil(t, snap)

	records, err := snapshots.GetRecordsByCaseNumber(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, records)
}
