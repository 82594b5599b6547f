package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/showsync/internal/showstate/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "showstate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestUpsertLightCreatesThenUpdates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)

	created, err := store.UpsertLight(context.Background(), storage.LightRecord{
		Name:      "ana",
		RealName:  "Ana Lima",
		Mode:      storage.LightModeOn,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert create: %v", err)
	}
	if created.Mode != storage.LightModeOn {
		t.Fatalf("mode = %q, want on", created.Mode)
	}

	later := now.Add(5 * time.Minute)
	updated, err := store.UpsertLight(context.Background(), storage.LightRecord{
		Name:      "ana",
		RealName:  "Ana Lima",
		Mode:      storage.LightModeBlast,
		CreatedAt: later,
		UpdatedAt: later,
	})
	if err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if updated.Mode != storage.LightModeBlast {
		t.Fatalf("mode = %q, want blast", updated.Mode)
	}
	if !updated.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want original %v", updated.CreatedAt, now)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Fatalf("updated_at = %v, want %v", updated.UpdatedAt, later)
	}

	lights, err := store.ListLights(context.Background())
	if err != nil {
		t.Fatalf("list lights: %v", err)
	}
	if len(lights) != 1 {
		t.Fatalf("expected single record after update, got %d", len(lights))
	}
}

func TestListLightsOrdersByName(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)

	for _, name := range []string{"zoe", "ana", "mia"} {
		if _, err := store.UpsertLight(context.Background(), storage.LightRecord{
			Name:      name,
			Mode:      storage.LightModeOff,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	lights, err := store.ListLights(context.Background())
	if err != nil {
		t.Fatalf("list lights: %v", err)
	}
	want := []string{"ana", "mia", "zoe"}
	if len(lights) != len(want) {
		t.Fatalf("expected %d lights, got %d", len(want), len(lights))
	}
	for i, name := range want {
		if lights[i].Name != name {
			t.Fatalf("lights[%d].Name = %q, want %q", i, lights[i].Name, name)
		}
	}
}

func TestUpsertPickPreservesCreationAndVisibility(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)

	if _, err := store.UpsertPick(context.Background(), storage.PickRecord{
		Name:      "ana",
		Pick:      "song-7",
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("submit pick: %v", err)
	}
	if _, err := store.SetPickVisibility(context.Background(), "ana", true, now.Add(time.Minute)); err != nil {
		t.Fatalf("set visibility: %v", err)
	}

	later := now.Add(10 * time.Minute)
	updated, err := store.UpsertPick(context.Background(), storage.PickRecord{
		Name:      "ana",
		Pick:      "song-9",
		CreatedAt: later,
		UpdatedAt: later,
	})
	if err != nil {
		t.Fatalf("resubmit pick: %v", err)
	}
	if updated.Pick != "song-9" {
		t.Fatalf("pick = %q, want song-9", updated.Pick)
	}
	if !updated.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want original %v", updated.CreatedAt, now)
	}
	if !updated.Show {
		t.Fatal("expected resubmission to preserve visibility")
	}
}

func TestListPicksOrdersByCreation(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	base := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)

	submissions := []struct {
		name string
		at   time.Time
	}{
		{name: "mia", at: base.Add(2 * time.Minute)},
		{name: "ana", at: base},
		{name: "zoe", at: base.Add(time.Minute)},
	}
	for _, submission := range submissions {
		if _, err := store.UpsertPick(context.Background(), storage.PickRecord{
			Name:      submission.name,
			Pick:      "song",
			CreatedAt: submission.at,
			UpdatedAt: submission.at,
		}); err != nil {
			t.Fatalf("submit %s: %v", submission.name, err)
		}
	}

	picks, err := store.ListPicks(context.Background())
	if err != nil {
		t.Fatalf("list picks: %v", err)
	}
	want := []string{"ana", "zoe", "mia"}
	if len(picks) != len(want) {
		t.Fatalf("expected %d picks, got %d", len(want), len(picks))
	}
	for i, name := range want {
		if picks[i].Name != name {
			t.Fatalf("picks[%d].Name = %q, want %q", i, picks[i].Name, name)
		}
	}
}

func TestSetPickVisibilityMissingPick(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.SetPickVisibility(context.Background(), "ghost", true, time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	picks, err := store.ListPicks(context.Background())
	if err != nil {
		t.Fatalf("list picks: %v", err)
	}
	if len(picks) != 0 {
		t.Fatalf("expected untouched store, got %d picks", len(picks))
	}
}

func TestUpsertLightRejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Now()

	cases := []struct {
		label  string
		record storage.LightRecord
	}{
		{label: "missing name", record: storage.LightRecord{Mode: storage.LightModeOn, CreatedAt: now, UpdatedAt: now}},
		{label: "missing mode", record: storage.LightRecord{Name: "ana", CreatedAt: now, UpdatedAt: now}},
		{label: "missing timestamps", record: storage.LightRecord{Name: "ana", Mode: storage.LightModeOn}},
	}
	for _, tc := range cases {
		if _, err := store.UpsertLight(context.Background(), tc.record); err == nil {
			t.Fatalf("%s: expected error", tc.label)
		}
	}
}
