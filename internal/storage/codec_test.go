package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gramforge/internal/genome"
	"gramforge/internal/model"
)

func fixturePath(name string) string {
	return filepath.Join("testdata", name)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestDecodeIndividualFixture(t *testing.T) {
	record, err := DecodeIndividual(readFixture(t, "individual_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if record.RunID != "run-fixture" || record.Index != 2 || record.Seed != 42 || record.Attempts != 3 {
		t.Fatalf("unexpected record header: %+v", record)
	}
	if record.Genome.NextID != 4 || len(record.Genome.Nodes) != 4 {
		t.Fatalf("unexpected genome snapshot: %+v", record.Genome)
	}
	if got := record.Genome.Nodes[2].Element; got != "begin" {
		t.Fatalf("unexpected element %q", got)
	}
	want := genome.Link{Owner: 3, Target: 2, Key: "to"}
	if len(record.Genome.Links) != 1 || record.Genome.Links[0] != want {
		t.Fatalf("unexpected links: %+v", record.Genome.Links)
	}
}

func TestDecodeRunRejectsOldSchema(t *testing.T) {
	_, err := DecodeRun(readFixture(t, "run_v0.json"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestEncodeRunKeepsIndividualOrder(t *testing.T) {
	run := model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              "run-1",
		Top:             "prog",
		Count:           3,
		IndividualIDs:   []string{"c", "a", "b"},
	}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.IndividualIDs) != 3 || decoded.IndividualIDs[0] != "c" || decoded.IndividualIDs[2] != "b" {
		t.Fatalf("unexpected ids: %v", decoded.IndividualIDs)
	}
}

func TestDecodeIndividualRejectsGarbage(t *testing.T) {
	if _, err := DecodeIndividual([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := DecodeIndividual([]byte(`{"id":"x"}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}
