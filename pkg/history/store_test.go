package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"ApkDisguise/pkg/types"
)

// setupTestStore creates a temporary Store for testing
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "history_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open Store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func TestStoreCreation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := os.Stat(store.Path()); os.IsNotExist(err) {
		t.Fatal("Database file should exist")
	}
	if filepath.Base(store.Path()) != DBName {
		t.Errorf("unexpected db name %s", store.Path())
	}
}

func TestRecordAssignsID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	rec := &types.RunRecord{
		SourceAPK:  "/apks/game.apk",
		Prefix:     "cn.chinapost",
		NewPackage: "cn.chinapost.game",
		Success:    true,
		Step:       types.StageComplete,
		Message:    "processing complete, new package: cn.chinapost.game",
		OutputPath: "/apks/game_fixed.apk",
		DurationMs: 1200,
	}
	if err := store.Record(rec); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Errorf("ID should be a UUID, got %q", rec.ID)
	}
	if rec.StartTime == 0 {
		t.Error("StartTime should be set")
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("record not found")
	}
	if *got != *rec {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, *rec)
	}
}

func TestGetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := store.Get(uuid.New().String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	base := time.Now().UnixMilli()
	for i, pkg := range []string{"a.b.one", "a.b.two", "a.b.three"} {
		rec := &types.RunRecord{
			SourceAPK:  "/x.apk",
			Prefix:     "a.b",
			NewPackage: pkg,
			DeviceID:   "emulator-5554",
			Install:    true,
			Step:       types.StageInstall,
			Error:      "",
			StartTime:  base + int64(i)*1000,
		}
		if err := store.Record(rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := store.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].NewPackage != "a.b.three" || runs[1].NewPackage != "a.b.two" {
		t.Errorf("unexpected order: %s, %s", runs[0].NewPackage, runs[1].NewPackage)
	}
	if !runs[0].Install || runs[0].DeviceID != "emulator-5554" {
		t.Errorf("fields lost: %+v", runs[0])
	}

	all, err := store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs, got %d", len(all))
	}
}

func TestPrune(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	old := &types.RunRecord{SourceAPK: "/old.apk", Prefix: "a.b", NewPackage: "a.b.old",
		StartTime: time.Now().Add(-48 * time.Hour).UnixMilli()}
	fresh := &types.RunRecord{SourceAPK: "/new.apk", Prefix: "a.b", NewPackage: "a.b.new"}
	for _, r := range []*types.RunRecord{old, fresh} {
		if err := store.Record(r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := store.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if got, _ := store.Get(old.ID); got != nil {
		t.Error("old run should be gone")
	}
}
