package storage

import (
	"context"
	"errors"
	"testing"

	"gramforge/internal/model"
)

func individualRecord(id, runID string, index int) model.IndividualRecord {
	return model.IndividualRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		RunID:           runID,
		Index:           index,
		Top:             "prog",
	}
}

func TestMemoryStoreIndividualsByRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, r := range []model.IndividualRecord{
		individualRecord("c", "run-1", 2),
		individualRecord("a", "run-1", 0),
		individualRecord("b", "run-1", 1),
		individualRecord("z", "run-2", 0),
	} {
		if err := store.SaveIndividual(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}

	got, err := store.ListIndividuals(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", got)
	}

	one, ok, err := store.GetIndividual(ctx, "z")
	if err != nil || !ok || one.RunID != "run-2" {
		t.Fatalf("get z: %+v %v %v", one, ok, err)
	}
	if _, ok, _ := store.GetIndividual(ctx, "missing"); ok {
		t.Fatal("expected missing individual")
	}
}

func TestMemoryStoreRunIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	ids := []string{"a", "b"}
	run := model.RunRecord{VersionedRecord: Versioned(), ID: "run-1", Top: "prog", Count: 2, IndividualIDs: ids}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	ids[0] = "mutated"

	loaded, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: %v %v", ok, err)
	}
	if loaded.IndividualIDs[0] != "a" {
		t.Fatalf("stored run aliases the caller's slice: %v", loaded.IndividualIDs)
	}
	loaded.IndividualIDs[1] = "mutated"
	again, _, _ := store.GetRun(ctx, "run-1")
	if again.IndividualIDs[1] != "b" {
		t.Fatalf("returned run aliases the stored slice: %v", again.IndividualIDs)
	}
}

func TestMemoryStoreRejectsUninitializedAndStaleRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SaveIndividual(ctx, individualRecord("a", "r", 0)); err == nil {
		t.Fatal("expected uninitialized error")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	stale := individualRecord("a", "r", 0)
	stale.SchemaVersion = 0
	if err := store.SaveIndividual(ctx, stale); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}
