package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"safe-delete/internal/deletion"
	"safe-delete/internal/fsops"
	"safe-delete/internal/logging"
)

func openTestDB(t *testing.T) *DeletionDB {
	t.Helper()
	db, err := NewDeletionDB(filepath.Join(t.TempDir(), "history", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func TestDatabaseCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deletions.db")

	db, err := NewDeletionDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Database file not created at %s: %v", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	var journalMode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}
}

// Outcomes are produced by a real service so the recorded messages match production.
func TestRecordFromService(t *testing.T) {
	db := openTestDB(t)
	svc := deletion.NewService(logging.Discard())
	svc.AddObserver(db)

	dir := t.TempDir()
	file := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	svc.Delete(file, false)
	svc.Delete(filepath.Join(dir, "missing"), true)

	records, _, err := db.Query(Filter{}, 10, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	byAction := map[string]DeletionRecord{}
	for _, r := range records {
		byAction[r.Action] = r
	}

	ok := byAction["DELETE"]
	if ok.Path != file || ok.FileName != "report.txt" || ok.ObjectType != "file" || ok.Kind != "none" {
		t.Errorf("unexpected DELETE record: %+v", ok)
	}
	if ok.ErrorMessage != "" {
		t.Errorf("successful record should have no error message, got %q", ok.ErrorMessage)
	}

	failed := byAction["ERROR"]
	if failed.Kind != "not_found" || failed.ObjectType != "directory" || failed.ErrorMessage == "" {
		t.Errorf("unexpected ERROR record: %+v", failed)
	}

	got, err := db.GetDeletionByRequestID(ok.RequestID)
	if err != nil {
		t.Fatalf("GetDeletionByRequestID failed: %v", err)
	}
	if got.ID != ok.ID {
		t.Errorf("GetDeletionByRequestID returned record %d, expected %d", got.ID, ok.ID)
	}
	if _, err := db.GetDeletionByRequestID("unknown"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown request id: expected sql.ErrNoRows, got %v", err)
	}
}

func seed(t *testing.T, db *DeletionDB, n int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		ev := deletion.Event{
			RequestID: fmt.Sprintf("req-%03d", i),
			Request:   deletion.Request{Path: fmt.Sprintf("/data/logs/app-%d.log", i), IsDirectory: i%3 == 0},
			StartedAt: now.Add(time.Duration(i) * time.Second),
			Duration:  time.Duration(i) * time.Millisecond,
		}
		if i%4 == 0 {
			ev.Request.Path = fmt.Sprintf("/srv/cache/%d", i)
		}
		if i%5 == 0 {
			ev.Outcome = failedOutcome(t)
		}
		if err := db.RecordDeletion(ev); err != nil {
			t.Fatalf("RecordDeletion(%d) failed: %v", i, err)
		}
	}
}

// failedOutcome obtains a real not-found outcome through a fake primitive.
func failedOutcome(t *testing.T) deletion.Outcome {
	t.Helper()
	svc := deletion.NewService(logging.Discard())
	svc.SetDeleter(&fsops.FakeDeleter{Err: os.ErrNotExist})
	return svc.Delete("/x", false)
}

func TestQueryFilters(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, 20)

	tests := []struct {
		name  string
		f     Filter
		total int
	}{
		{"all", Filter{}, 20},
		{"errors", Filter{Action: "ERROR"}, 4},
		{"successes", Filter{Action: "DELETE"}, 16},
		{"kind", Filter{Kind: "not_found"}, 4},
		{"path pattern", Filter{Path: "/srv/cache/%"}, 5},
		{"since future", Filter{Since: time.Now().Add(time.Hour)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := db.Query(tt.f, 5, 0)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if total != tt.total {
				t.Errorf("total = %d, expected %d", total, tt.total)
			}
		})
	}

	page, total, err := db.Query(Filter{}, 5, 5)
	if err != nil {
		t.Fatalf("paginated Query failed: %v", err)
	}
	if total != 20 || len(page) != 5 {
		t.Fatalf("page len %d total %d, expected 5/20", len(page), total)
	}
	if page[0].RequestID != "req-014" {
		t.Errorf("second page should start at req-014, got %s", page[0].RequestID)
	}

	combined, total, err := db.Query(Filter{Action: "ERROR", Path: "/data/%"}, 100, 0)
	if err != nil {
		t.Fatalf("combined Query failed: %v", err)
	}
	// errors are i%5==0 and /srv/cache takes i%4==0, leaving 5, 10 and 15
	if total != 3 || len(combined) != 3 {
		t.Errorf("ERROR under /data/%%: %d records, total %d, expected 3", len(combined), total)
	}
}

func TestDeletionStats(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, 20)

	stats, err := db.GetDeletionStats(1)
	if err != nil {
		t.Fatalf("GetDeletionStats failed: %v", err)
	}
	if stats.TotalDeletions != 16 || stats.TotalErrors != 4 {
		t.Errorf("totals = %d/%d, expected 16/4", stats.TotalDeletions, stats.TotalErrors)
	}
	if stats.ByKind["not_found"] != 4 || stats.ByKind["none"] != 16 {
		t.Errorf("unexpected ByKind: %v", stats.ByKind)
	}
	if stats.ByObjectType["directory"] != 7 {
		t.Errorf("ByObjectType[directory] = %d, expected 7", stats.ByObjectType["directory"])
	}
	if stats.AvgDurationMS <= 0 {
		t.Errorf("AvgDurationMS = %v, expected positive", stats.AvgDurationMS)
	}
}

func TestDeleteOldRecords(t *testing.T) {
	db := openTestDB(t)

	old := deletion.Event{
		RequestID: "old",
		Request:   deletion.Request{Path: "/old"},
		StartedAt: time.Now().AddDate(0, 0, -90),
	}
	fresh := deletion.Event{RequestID: "fresh", Request: deletion.Request{Path: "/fresh"}, StartedAt: time.Now()}
	for _, ev := range []deletion.Event{old, fresh} {
		if err := db.RecordDeletion(ev); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.DeleteOldRecords(30)
	if err != nil {
		t.Fatalf("DeleteOldRecords failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d records, expected 1", n)
	}
	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	db := openTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.RecordDeletion(deletion.Event{
				RequestID: fmt.Sprintf("c-%d", i),
				Request:   deletion.Request{Path: fmt.Sprintf("/c/%d", i)},
				StartedAt: time.Now(),
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write failed: %v", err)
		}
	}
	if _, total, _ := db.Query(Filter{}, 1, 0); total != 50 {
		t.Errorf("expected 50 records, got %d", total)
	}
}

func TestDuplicateRequestIDRejected(t *testing.T) {
	db := openTestDB(t)
	ev := deletion.Event{RequestID: "dup", Request: deletion.Request{Path: "/a"}, StartedAt: time.Now()}

	if err := db.RecordDeletion(ev); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordDeletion(ev); err == nil {
		t.Error("second insert with the same request id should fail")
	}
}
