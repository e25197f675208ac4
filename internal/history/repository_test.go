package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
	"github.com/udon-flasher/udon-core/internal/infrastructure/database"
	"github.com/udon-flasher/udon-core/migrations"
)

// setupTestRepo opens a migrated database in a temp dir.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)
	rec := &Record{
		ID:        "run-1",
		Operation: flash.OpFlash,
		Args:      []string{"pkexec", "./assets/odin4", "-a", "AP.tar.md5"},
		StartedAt: started,
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Operation != flash.OpFlash {
		t.Errorf("Operation = %q, want %q", got.Operation, flash.OpFlash)
	}
	if len(got.Args) != 4 || got.Args[3] != "AP.tar.md5" {
		t.Errorf("Args = %q, want round trip", got.Args)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Finished() {
		t.Error("Finished() = true before Finish")
	}
	if got.ExitCode != nil {
		t.Errorf("ExitCode = %v, want nil", *got.ExitCode)
	}
}

func TestRepository_CreateRequiresID(t *testing.T) {
	repo := setupTestRepo(t)

	if err := repo.Create(context.Background(), &Record{Operation: flash.OpReboot}); err == nil {
		t.Error("Create() expected error for empty id")
	}
}

func TestRepository_Finish(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &Record{ID: "run-1", Operation: flash.OpReboot}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repo.Finish(ctx, "run-1", Outcome{
		ExitCode:     2,
		Error:        "exit status 2",
		LastProgress: 40,
		LogLines:     7,
		LastLog:      "Fail request",
	})
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err := repo.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Finished() {
		t.Fatal("Finished() = false after Finish")
	}
	if got.ExitCode == nil || *got.ExitCode != 2 {
		t.Errorf("ExitCode = %v, want 2", got.ExitCode)
	}
	if got.Success {
		t.Error("Success = true, want false")
	}
	if got.LastProgress != 40 || got.LogLines != 7 || got.LastLog != "Fail request" {
		t.Errorf("counters = (%d, %d, %q), want (40, 7, Fail request)", got.LastProgress, got.LogLines, got.LastLog)
	}
}

func TestRepository_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrRunNotFound)
	}
	if err := repo.Finish(ctx, "missing", Outcome{}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Finish() error = %v, want %v", err, ErrRunNotFound)
	}
}

func TestRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		op := flash.OpFlash
		if i%2 == 1 {
			op = flash.OpReboot
		}
		rec := &Record{
			ID:        fmt.Sprintf("run-%d", i),
			Operation: op,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create(%s) error = %v", rec.ID, err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantIDs   []string
		wantTotal int
		wantLimit int
	}{
		{"newest first", Filter{}, []string{"run-4", "run-3", "run-2", "run-1", "run-0"}, 5, DefaultLimit},
		{"limit", Filter{Limit: 2}, []string{"run-4", "run-3"}, 5, 2},
		{"offset", Filter{Limit: 2, Offset: 3}, []string{"run-1", "run-0"}, 5, 2},
		{"operation", Filter{Operation: flash.OpReboot}, []string{"run-3", "run-1"}, 2, DefaultLimit},
		{"limit clamped", Filter{Limit: 10_000}, []string{"run-4", "run-3", "run-2", "run-1", "run-0"}, 5, MaxLimit},
		{"past the end", Filter{Offset: 10}, []string{}, 5, DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if res.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", res.Limit, tt.wantLimit)
			}
			if res.Runs == nil {
				t.Fatal("Runs = nil, want empty slice")
			}
			var ids []string
			for _, r := range res.Runs {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}
