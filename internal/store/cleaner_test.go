package store

import (
	"context"
	"testing"
	"time"

	"github.com/coffersTech/logbuf/internal/clock"
	"github.com/coffersTech/logbuf/internal/model"
)

func TestPurgeBefore(t *testing.T) {
	fake := clock.Fake(epoch)
	s := openTestStore(t, fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, "app", 1<<20, text(10, "old")); err != nil {
			t.Fatal(err)
		}
	}
	fake.Advance(48 * time.Hour)
	if _, err := s.Append(ctx, "app", 1<<20, text(7, "n")); err != nil {
		t.Fatal(err)
	}

	removed, err := s.PurgeBefore(ctx, "app", fake.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 removed, got %d", removed)
	}
	status, _ := s.Status(ctx, "app")
	if status.TotalSize != 7 {
		t.Errorf("Expected totalSize 7 after purge, got %d", status.TotalSize)
	}
}

func TestStatsAndHistogram(t *testing.T) {
	fake := clock.Fake(epoch)
	s := openTestStore(t, fake)
	ctx := context.Background()

	levels := []model.Level{model.LevelInfo, model.LevelInfo, model.LevelError}
	for _, lvl := range levels {
		c := text(5, "s")
		c.Level = lvl
		if _, err := s.Append(ctx, "app", 1<<20, c); err != nil {
			t.Fatal(err)
		}
		fake.Advance(time.Minute)
	}

	st, err := s.Stats(ctx, "app")
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 3 || st.TotalSize != 15 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.Levels["info"] != 2 || st.Levels["error"] != 1 {
		t.Errorf("unexpected level distribution %v", st.Levels)
	}
	if st.Oldest >= st.Newest {
		t.Errorf("oldest %d should precede newest %d", st.Oldest, st.Newest)
	}

	interval := time.Hour.Milliseconds()
	points, err := s.Histogram(ctx, "app", 0, fake.Now().UnixMilli(), interval)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, p := range points {
		if p.Time%interval != 0 {
			t.Errorf("bucket %d not aligned", p.Time)
		}
		total += p.Count
	}
	if total != 3 {
		t.Errorf("Expected 3 entries across buckets, got %d", total)
	}

	if _, err := s.Histogram(ctx, "app", 0, 1, 0); err == nil {
		t.Error("Expected error for zero interval")
	}
}
