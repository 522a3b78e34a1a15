// Package stats records what a generation run did: unroll attempt counters
// and the run artifacts written next to the generated individuals.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID       string `json:"run_id"`
	GrammarPath string `json:"grammar_path,omitempty"`
	Top         string `json:"top"`
	Count       int    `json:"count"`
	Seed        int64  `json:"seed"`
	Workers     int    `json:"workers"`
	MaxAttempts int    `json:"max_attempts"`
	MaxDepth    int    `json:"max_depth"`
}

// IndividualSummary is one generated individual as listed in the artifacts.
type IndividualSummary struct {
	ID         string `json:"id"`
	Index      int    `json:"index"`
	Seed       int64  `json:"seed"`
	Attempts   int    `json:"attempts"`
	Nodes      int    `json:"nodes"`
	Frames     int    `json:"frames"`
	Macros     int    `json:"macros"`
	Parameters int    `json:"parameters"`
	Links      int    `json:"links"`
	Text       string `json:"text,omitempty"`
}

type RunArtifacts struct {
	Config      RunConfig           `json:"config"`
	Individuals []IndividualSummary `json:"individuals"`
	Attempts    AttemptSummary      `json:"attempts"`
	Shape       BatchShape          `json:"shape"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Top          string  `json:"top"`
	Count        int     `json:"count"`
	Seed         int64   `json:"seed"`
	Workers      int     `json:"workers"`
	SuccessRate  float64 `json:"success_rate"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

var artifactFiles = []string{"config.json", "individuals.json", "attempts.json", "shape.json", "individuals.csv"}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "individuals.json"), artifacts.Individuals); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "attempts.json"), artifacts.Attempts); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "shape.json"), artifacts.Shape); err != nil {
		return "", err
	}
	if err := writeIndividualsCSV(filepath.Join(runDir, "individuals.csv"), artifacts.Individuals); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index entries, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadIndividuals(baseDir, runID string) ([]IndividualSummary, bool, error) {
	var out []IndividualSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, "individuals.json"), &out)
	return out, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func writeIndividualsCSV(path string, individuals []IndividualSummary) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"index", "id", "seed", "attempts", "nodes", "frames", "macros", "parameters", "links"}); err != nil {
		return err
	}
	for _, ind := range individuals {
		if err := writer.Write([]string{
			strconv.Itoa(ind.Index),
			ind.ID,
			strconv.FormatInt(ind.Seed, 10),
			strconv.Itoa(ind.Attempts),
			strconv.Itoa(ind.Nodes),
			strconv.Itoa(ind.Frames),
			strconv.Itoa(ind.Macros),
			strconv.Itoa(ind.Parameters),
			strconv.Itoa(ind.Links),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadAttemptColumn reads the attempts column of individuals.csv in row order.
func ReadAttemptColumn(baseDir, runID string) ([]int, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "individuals.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []int{}, true, nil
		}
		return nil, false, err
	}
	col := -1
	for i, name := range header {
		if name == "attempts" {
			col = i
		}
	}
	if col < 0 {
		return nil, false, fmt.Errorf("individuals csv has no attempts column")
	}

	out := make([]int, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		n, err := strconv.Atoi(record[col])
		if err != nil {
			return nil, false, err
		}
		out = append(out, n)
	}
	return out, true, nil
}

func readJSON(path string, into any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
