package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jjenkins/visawatch/internal/model"
	"github.com/jjenkins/visawatch/internal/store"
)

const (
	forumVisaType = "H1"
	clearedStatus = "Clear"
)

// ForumPosts returns the H1 cases carrying a note in the latest snapshot of
// every month, most recently checked first. Cleared cases are skipped when
// excludeCleared is set.
func (s *StatsService) ForumPosts(ctx context.Context, excludeCleared bool) ([]model.Record, error) {
	snapshots, err := s.snapshots.ListSnapshots(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	// snapshots are newest first, so the first one seen per period is its latest
	seen := make(map[string]bool)
	var posts []model.Record
	for _, snap := range snapshots {
		if seen[snap.Period] {
			continue
		}
		seen[snap.Period] = true

		records, err := s.snapshots.ListRecords(ctx, snap.ID, store.RecordFilter{VisaType: forumVisaType})
		if err != nil {
			return nil, fmt.Errorf("failed to list records of snapshot %s: %w", snap.ID, err)
		}
		for _, r := range records {
			if r.Note == "" {
				continue
			}
			if excludeCleared && r.Status == clearedStatus {
				continue
			}
			posts = append(posts, r)
		}
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return postedAt(posts[i]).After(postedAt(posts[j]))
	})
	return posts, nil
}

// postedAt is the case's check date, or when it was stored if it has none
func postedAt(r model.Record) time.Time {
	if r.CheckDate.Valid {
		if t, err := time.Parse(model.DateLayout, r.CheckDate.String); err == nil {
			return t
		}
	}
	return r.CreatedAt
}
