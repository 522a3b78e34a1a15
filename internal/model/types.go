// Package model holds the persistent records of generated individuals and
// generation runs.
package model

import "gramforge/internal/genome"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// IndividualRecord is the stored form of one individual. The genome is kept
// as a snapshot; it can be inspected and compared but not mutated again.
type IndividualRecord struct {
	VersionedRecord
	ID       string          `json:"id"`
	RunID    string          `json:"run_id,omitempty"`
	Index    int             `json:"index"`
	Seed     int64           `json:"seed"`
	Top      string          `json:"top"`
	Attempts int             `json:"attempts"`
	Genome   genome.Snapshot `json:"genome"`
	Text     string          `json:"text,omitempty"`
}

type RunRecord struct {
	VersionedRecord
	ID            string   `json:"id"`
	GrammarPath   string   `json:"grammar_path,omitempty"`
	Top           string   `json:"top"`
	Seed          int64    `json:"seed"`
	Count         int      `json:"count"`
	IndividualIDs []string `json:"individual_ids"`
	Attempts      int64    `json:"attempts"`
	Successes     int64    `json:"successes"`
	CreatedAtUTC  string   `json:"created_at_utc"`
}
