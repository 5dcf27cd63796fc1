package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/route"
	"transmute/internal/services"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJob(id string, status jobs.Status, ended time.Time) jobs.Job {
	rt, _ := route.NewResolver(catalog.Default()).FindRoute(catalog.DomainEbook, "epub", "mobi")
	job := jobs.Job{
		ID:        id,
		Input:     codec.Descriptor{Path: "/books/" + id + ".epub", Format: "epub", Size: 1024},
		Route:     rt,
		Status:    status,
		CreatedAt: ended.Add(-2 * time.Minute),
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
	}
	switch status {
	case jobs.StatusCompleted:
		job.Progress = 100
		job.Output = &codec.Descriptor{Path: "/out/" + id + ".mobi", Format: "mobi", Size: 2048}
	case jobs.StatusFailed:
		job.Error = "calibre: ebook-convert exited with status 1"
		job.ErrorKind = "execution"
	}
	return job
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	ended := time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)

	if err := store.Record(ctx, history.EntryFromJob(sampleJob("a", jobs.StatusCompleted, ended))); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobs.StatusCompleted || got.Route != "epub -> mobi" || got.Hops != 1 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.OutputPath != "/out/a.mobi" || got.OutputSize != 2048 {
		t.Fatalf("unexpected output %q (%d)", got.OutputPath, got.OutputSize)
	}
	if !got.EndedAt.Equal(ended) || got.Duration != time.Minute {
		t.Fatalf("unexpected timing ended=%s duration=%s", got.EndedAt, got.Duration)
	}
	if got.Quality == 0 || got.Domain != catalog.DomainEbook {
		t.Fatalf("route annotations lost: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Record(ctx, history.Entry{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	records := []jobs.Job{
		sampleJob("old", jobs.StatusCompleted, base),
		sampleJob("failed", jobs.StatusFailed, base.Add(time.Minute)),
		sampleJob("new", jobs.StatusCompleted, base.Add(2*time.Minute+500*time.Millisecond)),
	}
	records[1].BatchID = "batch-1"
	for _, job := range records {
		if err := store.Record(ctx, history.EntryFromJob(job)); err != nil {
			t.Fatalf("record %s: %v", job.ID, err)
		}
	}

	cases := []struct {
		name   string
		filter history.Filter
		want   []string
	}{
		{name: "all", filter: history.Filter{}, want: []string{"new", "failed", "old"}},
		{name: "status", filter: history.Filter{Status: jobs.StatusCompleted}, want: []string{"new", "old"}},
		{name: "batch", filter: history.Filter{BatchID: "batch-1"}, want: []string{"failed"}},
		{name: "since", filter: history.Filter{Since: base.Add(30 * time.Second)}, want: []string{"new", "failed"}},
		{name: "limit", filter: history.Filter{Limit: 1}, want: []string{"new"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := store.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(entries) != len(tc.want) {
				t.Fatalf("got %d entries, want %v", len(entries), tc.want)
			}
			for i, id := range tc.want {
				if entries[i].JobID != id {
					t.Fatalf("entry %d = %s, want %s", i, entries[i].JobID, id)
				}
			}
		})
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[jobs.StatusCompleted] != 2 || stats[jobs.StatusFailed] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, history.EntryFromJob(sampleJob(id, jobs.StatusCompleted, base.Add(time.Duration(i)*time.Hour)))); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	removed, err := store.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	entries, _ := store.List(ctx, history.Filter{})
	if len(entries) != 1 || entries[0].JobID != "c" {
		t.Fatalf("unexpected remaining entries %+v", entries)
	}
}

func TestRejectedJobWithoutRoute(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := jobs.Job{
		ID:        "rejected",
		Input:     codec.Descriptor{Path: "/in/x.pdf", Format: "pdf"},
		Status:    jobs.StatusFailed,
		Error:     "no generic route from pdf to md within 2 hop(s)",
		ErrorKind: "unsupported",
		CreatedAt: time.Now(),
		EndedAt:   time.Now(),
	}
	if err := store.Record(ctx, history.EntryFromJob(job)); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := store.Get(ctx, "rejected")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Route != "" || got.Hops != 0 || got.Quality != 0 || !got.StartedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
