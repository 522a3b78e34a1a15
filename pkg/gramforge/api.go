// Package gramforge is the public entry point: it loads grammar files,
// generates and mutates individuals, and keeps their records and run
// artifacts.
package gramforge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"gramforge/internal/dump"
	"gramforge/internal/evo"
	"gramforge/internal/fault"
	"gramforge/internal/grammar"
	"gramforge/internal/grammarfile"
	"gramforge/internal/individual"
	"gramforge/internal/model"
	"gramforge/internal/rrand"
	"gramforge/internal/stats"
	"gramforge/internal/storage"
	"gramforge/internal/unroll"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "gramforge.db"

	defaultCount         = 1
	defaultWorkers       = 4
	defaultCheckSamples  = 20
	defaultMutateRounds  = 1
	degenerateMinAttempt = 20
	degenerateRate       = 0.05
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
	// Registerer receives the cumulative unroll attempt counters. Nil keeps
	// them unregistered.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	monitor *stats.Monitor
	logger  *slog.Logger

	artifactsDir string
	exportsDir   string
}

type GenerateRequest struct {
	GrammarPath string
	// Top names the type to generate; empty uses the grammar's top.
	Top         string
	Count       int
	Seed        int64
	Workers     int
	MaxAttempts int
	MaxDepth    int
	// NodeInfo adds the pathname and element comment of every node to the
	// rendered text.
	NodeInfo bool
}

type IndividualItem struct {
	ID         string
	Index      int
	Seed       int64
	Attempts   int
	Nodes      int
	Frames     int
	Macros     int
	Parameters int
	Links      int
	Text       string
}

type GenerateSummary struct {
	RunID        string
	ArtifactsDir string
	Individuals  []IndividualItem
	Attempts     stats.AttemptSummary
}

type ShowRequest struct {
	RunID  string
	Latest bool
	// Indexes filters the individuals shown; empty shows all of them.
	Indexes []int
}

type CheckRequest struct {
	GrammarPath string
	Top         string
	Samples     int
	Seed        int64
	MaxAttempts int
	MaxDepth    int
}

type CheckSummary struct {
	Top           string
	Types         []string
	Samples       int
	Generated     int
	Unsatisfiable int
	Attempts      stats.AttemptSummary
	// Degenerate is set when the sampled attempts almost never succeed.
	Degenerate bool
}

type MutateRequest struct {
	GrammarPath string
	Top         string
	Seed        int64
	Rounds      int
	// Strength is passed to parameter mutations and must be in [0, 1]; nil
	// means 1.
	Strength *float64
	// Operator restricts the rounds to one operator name; empty picks an
	// applicable operator per round.
	Operator    string
	MaxAttempts int
	MaxDepth    int
}

type MutationStep struct {
	Round    int
	Operator string
	Accepted bool
	Reason   string
}

type MutateSummary struct {
	Parent IndividualItem
	Child  IndividualItem
	Steps  []MutationStep
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Top          string
	Seed         int64
	Count        int
	Workers      int
	SuccessRate  float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		monitor:      stats.NewMonitor(opts.Registerer),
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Monitor returns the attempt counters accumulated over the client's life.
func (c *Client) Monitor() *stats.Monitor {
	return c.monitor
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateSummary, error) {
	if req.Count == 0 {
		req.Count = defaultCount
	}
	if req.Count < 0 {
		return GenerateSummary{}, fmt.Errorf("%w: count must be > 0", fault.ErrConfiguration)
	}
	if req.Workers <= 0 {
		req.Workers = defaultWorkers
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = individual.DefaultMaxAttempts
	}
	if req.MaxDepth <= 0 {
		req.MaxDepth = unroll.DefaultMaxDepth
	}

	top, _, err := loadTop(req.GrammarPath, req.Top)
	if err != nil {
		return GenerateSummary{}, err
	}

	runMonitor := stats.NewMonitor(nil)
	in := c.initializer(runMonitor, req.MaxAttempts, req.MaxDepth)
	batch, err := in.GenerateBatch(ctx, top, req.Seed, req.Count, req.Workers)
	if err != nil {
		return GenerateSummary{}, err
	}

	opts := renderOptions(req.NodeInfo)
	items := make([]IndividualItem, 0, len(batch))
	for _, ind := range batch {
		item, err := itemOf(ind, opts)
		if err != nil {
			return GenerateSummary{}, err
		}
		items = append(items, item)
	}

	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%d-%s", top.Name(), req.Seed, uuid.NewString()[:8])
	attempts := runMonitor.Summary()

	if err := c.store.Init(ctx); err != nil {
		return GenerateSummary{}, err
	}
	ids := make([]string, 0, len(batch))
	for i, ind := range batch {
		record := model.IndividualRecord{
			VersionedRecord: storage.Versioned(),
			ID:              ind.ID.String(),
			RunID:           runID,
			Index:           ind.Index,
			Seed:            ind.Seed,
			Top:             top.Name(),
			Attempts:        ind.Attempts,
			Genome:          ind.Genome.Snapshot(),
			Text:            items[i].Text,
		}
		if err := c.store.SaveIndividual(ctx, record); err != nil {
			return GenerateSummary{}, fmt.Errorf("save individual %d: %w", ind.Index, err)
		}
		ids = append(ids, record.ID)
	}
	if err := c.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		GrammarPath:     req.GrammarPath,
		Top:             top.Name(),
		Seed:            req.Seed,
		Count:           req.Count,
		IndividualIDs:   ids,
		Attempts:        attempts.Attempts,
		Successes:       attempts.Successes,
		CreatedAtUTC:    now.Format(time.RFC3339Nano),
	}); err != nil {
		return GenerateSummary{}, fmt.Errorf("save run: %w", err)
	}

	summaries := make([]stats.IndividualSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, summaryOf(item))
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:       runID,
			GrammarPath: req.GrammarPath,
			Top:         top.Name(),
			Count:       req.Count,
			Seed:        req.Seed,
			Workers:     req.Workers,
			MaxAttempts: req.MaxAttempts,
			MaxDepth:    req.MaxDepth,
		},
		Individuals: summaries,
		Attempts:    attempts,
		Shape:       stats.ShapeOf(summaries),
	})
	if err != nil {
		return GenerateSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Top:          top.Name(),
		Count:        req.Count,
		Seed:         req.Seed,
		Workers:      req.Workers,
		SuccessRate:  attempts.SuccessRate,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
	}); err != nil {
		return GenerateSummary{}, err
	}

	c.logger.Info("generated individuals",
		"run_id", runID,
		"top", top.Name(),
		"count", req.Count,
		"attempts", attempts.Attempts,
		"success_rate", attempts.SuccessRate,
	)
	return GenerateSummary{
		RunID:        runID,
		ArtifactsDir: runDir,
		Individuals:  items,
		Attempts:     attempts,
	}, nil
}

// Show returns the individuals of a run. Records in the store win; runs made
// by another process with a memory store are read back from the artifacts.
func (c *Client) Show(ctx context.Context, req ShowRequest) ([]IndividualItem, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}

	records, err := c.store.ListIndividuals(ctx, runID)
	if err != nil {
		return nil, err
	}
	var items []IndividualItem
	if len(records) > 0 {
		items = make([]IndividualItem, 0, len(records))
		for _, r := range records {
			items = append(items, recordItem(r))
		}
	} else {
		summaries, ok, err := stats.ReadIndividuals(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		items = make([]IndividualItem, 0, len(summaries))
		for _, s := range summaries {
			items = append(items, IndividualItem(s))
		}
	}
	return filterIndexes(items, req.Indexes)
}

// Check loads a grammar and samples it, reporting how often unrolling
// succeeds. Individuals that exhaust their attempt budget are counted, not
// returned as errors.
func (c *Client) Check(ctx context.Context, req CheckRequest) (CheckSummary, error) {
	if req.Samples <= 0 {
		req.Samples = defaultCheckSamples
	}
	top, g, err := loadTop(req.GrammarPath, req.Top)
	if err != nil {
		return CheckSummary{}, err
	}

	runMonitor := stats.NewMonitor(nil)
	in := c.initializer(runMonitor, req.MaxAttempts, req.MaxDepth)
	summary := CheckSummary{Top: top.Name(), Types: g.Directory.Names(), Samples: req.Samples}
	for i := 0; i < req.Samples; i++ {
		_, err := in.New(ctx, top, rrand.Derive(req.Seed, i))
		switch {
		case err == nil:
			summary.Generated++
		case errors.Is(err, individual.ErrUnsatisfiable):
			summary.Unsatisfiable++
		default:
			return CheckSummary{}, err
		}
	}
	summary.Attempts = runMonitor.Summary()
	summary.Degenerate = runMonitor.Degenerate(degenerateMinAttempt, degenerateRate)
	if summary.Degenerate {
		c.logger.Warn("grammar rarely unrolls", "top", top.Name(), "success_rate", summary.Attempts.SuccessRate)
	}
	return summary, nil
}

// Mutate generates one individual and applies req.Rounds mutations to it.
// Rounds where no operator applies, or the offspring fails a check, leave the
// current individual in place.
func (c *Client) Mutate(ctx context.Context, req MutateRequest) (MutateSummary, error) {
	if req.Rounds <= 0 {
		req.Rounds = defaultMutateRounds
	}
	strength := 1.0
	if req.Strength != nil {
		strength = *req.Strength
	}
	if !(strength >= 0 && strength <= 1) {
		return MutateSummary{}, fmt.Errorf("%w: strength must be in [0, 1], got %v", fault.ErrConfiguration, strength)
	}
	top, _, err := loadTop(req.GrammarPath, req.Top)
	if err != nil {
		return MutateSummary{}, err
	}

	in := c.initializer(stats.NewMonitor(nil), req.MaxAttempts, req.MaxDepth)
	parent, err := in.New(ctx, top, req.Seed)
	if err != nil {
		return MutateSummary{}, err
	}

	rng := rrand.New(req.Seed+1000, rrand.WithLogger(c.logger))
	ops := evo.DefaultOperators(rng, in.Unroller(), strength)
	if req.Operator != "" {
		ops, err = operatorNamed(ops, req.Operator)
		if err != nil {
			return MutateSummary{}, err
		}
	}

	current := parent
	steps := make([]MutationStep, 0, req.Rounds)
	for round := 1; round <= req.Rounds; round++ {
		op, err := pickOperator(rng, ops, current)
		if errors.Is(err, evo.ErrNoMutationChoice) {
			steps = append(steps, MutationStep{Round: round, Reason: err.Error()})
			continue
		}
		if err != nil {
			return MutateSummary{}, err
		}
		child, err := op.Apply(ctx, current)
		if err != nil {
			if errors.Is(err, evo.ErrNoMutationChoice) || fault.Recoverable(err) {
				c.logger.Debug("mutation rejected", "round", round, "operator", op.Name(), "error", err)
				steps = append(steps, MutationStep{Round: round, Operator: op.Name(), Reason: err.Error()})
				continue
			}
			return MutateSummary{}, err
		}
		current = child
		steps = append(steps, MutationStep{Round: round, Operator: op.Name(), Accepted: true})
	}

	opts := renderOptions(false)
	parentItem, err := itemOf(parent, opts)
	if err != nil {
		return MutateSummary{}, err
	}
	childItem, err := itemOf(current, opts)
	if err != nil {
		return MutateSummary{}, err
	}
	return MutateSummary{Parent: parentItem, Child: childItem, Steps: steps}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	items := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Top:          e.Top,
			Seed:         e.Seed,
			Count:        e.Count,
			Workers:      e.Workers,
			SuccessRate:  e.SuccessRate,
		})
	}
	return items, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir}, nil
}

func (c *Client) initializer(runMonitor *stats.Monitor, maxAttempts, maxDepth int) *individual.Initializer {
	u := unroll.New(
		unroll.WithMaxDepth(maxDepth),
		unroll.WithObserver(observers{c.monitor, runMonitor}),
		unroll.WithLogger(c.logger),
	)
	return individual.NewInitializer(
		individual.WithMaxAttempts(maxAttempts),
		individual.WithUnroller(u),
		individual.WithLogger(c.logger),
	)
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", fmt.Errorf("%w: run id or latest is required", fault.ErrConfiguration)
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no runs in %s", ErrRunNotFound, c.artifactsDir)
	}
	return entries[0].RunID, nil
}

// observers fans one attempt outcome out to several monitors.
type observers []unroll.Observer

func (o observers) ObserveUnroll(err error) {
	for _, obs := range o {
		obs.ObserveUnroll(err)
	}
}

func loadTop(path, name string) (grammar.Type, *grammarfile.Grammar, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("%w: grammar path is required", fault.ErrConfiguration)
	}
	g, err := grammarfile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		return g.Top, g, nil
	}
	t, err := g.Directory.Lookup(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", fault.ErrConfiguration, err)
	}
	return t, g, nil
}

func renderOptions(nodeInfo bool) dump.Options {
	opts := dump.DefaultOptions()
	opts.NodeInfo = nodeInfo
	return opts
}

func itemOf(ind *individual.Individual, opts dump.Options) (IndividualItem, error) {
	text, err := dump.Dump(ind.Genome, opts)
	if err != nil {
		return IndividualItem{}, fmt.Errorf("render individual %d: %w", ind.Index, err)
	}
	counts := ind.Counts()
	return IndividualItem{
		ID:         ind.ID.String(),
		Index:      ind.Index,
		Seed:       ind.Seed,
		Attempts:   ind.Attempts,
		Nodes:      counts.Nodes,
		Frames:     counts.Frames,
		Macros:     counts.Macros,
		Parameters: counts.Parameters,
		Links:      counts.Links,
		Text:       text,
	}, nil
}

func recordItem(r model.IndividualRecord) IndividualItem {
	item := IndividualItem{
		ID:       r.ID,
		Index:    r.Index,
		Seed:     r.Seed,
		Attempts: r.Attempts,
		Nodes:    len(r.Genome.Nodes),
		Links:    len(r.Genome.Links),
		Text:     r.Text,
	}
	for _, n := range r.Genome.Nodes {
		switch n.Kind {
		case "frame":
			item.Frames++
		case "macro":
			item.Macros++
		}
		item.Parameters += len(n.Params)
	}
	return item
}

func summaryOf(item IndividualItem) stats.IndividualSummary {
	return stats.IndividualSummary(item)
}

func filterIndexes(items []IndividualItem, indexes []int) ([]IndividualItem, error) {
	if len(indexes) == 0 {
		return items, nil
	}
	byIndex := make(map[int]IndividualItem, len(items))
	for _, item := range items {
		byIndex[item.Index] = item
	}
	sorted := append([]int(nil), indexes...)
	sort.Ints(sorted)
	out := make([]IndividualItem, 0, len(sorted))
	for _, idx := range sorted {
		item, ok := byIndex[idx]
		if !ok {
			return nil, fmt.Errorf("%w: no individual %d in run", fault.ErrConfiguration, idx)
		}
		out = append(out, item)
	}
	return out, nil
}

// normalizeOperatorName accepts dashed and mixed-case spellings of operator
// names.
func normalizeOperatorName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

func operatorNamed(ops []evo.Operator, name string) ([]evo.Operator, error) {
	want := normalizeOperatorName(name)
	for _, op := range ops {
		if op.Name() == want {
			return []evo.Operator{op}, nil
		}
	}
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name())
	}
	return nil, fmt.Errorf("%w: unknown operator %q (known: %v)", fault.ErrConfiguration, name, names)
}

func pickOperator(rng *rrand.Engine, ops []evo.Operator, parent *individual.Individual) (evo.Operator, error) {
	candidates := make([]evo.Operator, 0, len(ops))
	for _, op := range ops {
		if ctxOp, ok := op.(evo.ContextualOperator); ok && !ctxOp.Applicable(parent) {
			continue
		}
		candidates = append(candidates, op)
	}
	if len(candidates) == 0 {
		return nil, evo.ErrNoMutationChoice
	}
	op, _, err := rrand.Choice(rng, candidates, nil, 1)
	return op, err
}
