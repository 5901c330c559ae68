package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jjenkins/visawatch/internal/store"
)

// ErrNoSnapshot is returned when there is no stored snapshot to report on
var ErrNoSnapshot = errors.New("no snapshot found")

// StatsService calculates summary statistics over the latest snapshot
type StatsService struct {
	snapshots *store.SnapshotStore
}

// NewStatsService creates a new StatsService
func NewStatsService(snapshots *store.SnapshotStore) *StatsService {
	return &StatsService{snapshots: snapshots}
}

// Statistics summarizes one snapshot
type Statistics struct {
	SnapshotID      string                    `json:"snapshot_id"`
	Period          string                    `json:"month"`
	ScrapedAt       time.Time                 `json:"snapshot_date"`
	TotalRecords    int                       `json:"total_records"`
	StatusCounts    map[string]int            `json:"status_counts"`
	VisaTypeCounts  map[string]int            `json:"visa_type_counts"`
	ConsulateCounts map[string]int            `json:"consulate_counts"`
	WaitingDays     *store.WaitingDaysSummary `json:"waiting_days,omitempty"`
}

// Statistics reports on the latest snapshot of period, or of any period when
// period is empty. It returns ErrNoSnapshot when nothing has been stored.
func (s *StatsService) Statistics(ctx context.Context, period string) (*Statistics, error) {
	snap, err := s.snapshots.GetLatestSnapshot(ctx, period)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	stats := &Statistics{
		SnapshotID:   snap.ID,
		Period:       snap.Period,
		ScrapedAt:    snap.CreatedAt,
		TotalRecords: snap.RecordCount,
	}

	groups := []struct {
		column string
		dst    *map[string]int
	}{
		{"status", &stats.StatusCounts},
		{"visa_type", &stats.VisaTypeCounts},
		{"consulate", &stats.ConsulateCounts},
	}
	for _, g := range groups {
		counts, err := s.snapshots.CountRecordsBy(ctx, snap.ID, g.column)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate %s counts: %w", g.column, err)
		}
		*g.dst = counts
	}

	stats.WaitingDays, err = s.snapshots.SummarizeWaitingDays(ctx, snap.ID)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
