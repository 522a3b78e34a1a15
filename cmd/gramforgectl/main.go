package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gramforge/pkg/gramforge"
)

var errDegenerateGrammar = errors.New("grammar rarely unrolls")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// app carries the persistent flags and what is derived from them once per
// invocation.
type app struct {
	configPath   string
	storeKind    string
	dbPath       string
	artifactsDir string
	exportsDir   string
	logFormat    string
	logLevel     string

	cfg    runConfig
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gramforgectl",
		Short:         "Generate and mutate grammar-constrained individuals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.logFormat, a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			if a.configPath != "" {
				cfg, err := loadRunConfig(a.configPath)
				if err != nil {
					return err
				}
				a.cfg = cfg
				logger.Debug("run config loaded", "path", a.configPath)
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML run config; flags override its values")
	pf.StringVar(&a.storeKind, "store", "memory", "store backend: memory|sqlite")
	pf.StringVar(&a.dbPath, "db-path", "gramforge.db", "sqlite database path")
	pf.StringVar(&a.artifactsDir, "artifacts-dir", "runs", "directory of run artifacts")
	pf.StringVar(&a.exportsDir, "exports-dir", "exports", "directory exports are written to")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text|json")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level: debug|info|warn|error")

	root.AddCommand(
		a.generateCmd(),
		a.showCmd(),
		a.checkCmd(),
		a.mutateCmd(),
		a.runsCmd(),
		a.exportCmd(),
	)
	return root
}

func (a *app) client(cmd *cobra.Command) (*gramforge.Client, error) {
	flags := cmd.Flags()
	return gramforge.New(gramforge.Options{
		StoreKind:    pick(flags.Changed("store"), a.storeKind, a.cfg.Store),
		DBPath:       pick(flags.Changed("db-path"), a.dbPath, a.cfg.DBPath),
		ArtifactsDir: pick(flags.Changed("artifacts-dir"), a.artifactsDir, a.cfg.ArtifactsDir),
		ExportsDir:   pick(flags.Changed("exports-dir"), a.exportsDir, a.cfg.ExportsDir),
		Logger:       a.logger,
	})
}

func (a *app) withClient(cmd *cobra.Command, fn func(c *gramforge.Client) error) error {
	c, err := a.client(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()
	if err := c.Init(cmd.Context()); err != nil {
		return err
	}
	return fn(c)
}

func (a *app) generateCmd() *cobra.Command {
	var (
		req     gramforge.GenerateRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of individuals from a grammar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			fromFile := a.cfg.generateRequest()
			req.GrammarPath = pick(flags.Changed("grammar"), req.GrammarPath, fromFile.GrammarPath)
			req.Top = pick(flags.Changed("top"), req.Top, fromFile.Top)
			req.Count = pick(flags.Changed("count"), req.Count, fromFile.Count)
			req.Seed = pick(flags.Changed("seed"), req.Seed, fromFile.Seed)
			req.Workers = pick(flags.Changed("workers"), req.Workers, fromFile.Workers)
			req.MaxAttempts = pick(flags.Changed("max-attempts"), req.MaxAttempts, fromFile.MaxAttempts)
			req.MaxDepth = pick(flags.Changed("max-depth"), req.MaxDepth, fromFile.MaxDepth)
			req.NodeInfo = pick(flags.Changed("node-info"), req.NodeInfo, fromFile.NodeInfo)

			return a.withClient(cmd, func(c *gramforge.Client) error {
				summary, err := c.Generate(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, summary)
				}
				fmt.Fprintf(out, "run_id=%s individuals=%d attempts=%d success_rate=%.3f artifacts=%s\n",
					summary.RunID, len(summary.Individuals), summary.Attempts.Attempts, summary.Attempts.SuccessRate, summary.ArtifactsDir)
				printIndividuals(out, summary.Individuals)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.GrammarPath, "grammar", "", "grammar file (YAML)")
	f.StringVar(&req.Top, "top", "", "type to generate; defaults to the grammar's top")
	f.IntVar(&req.Count, "count", 1, "number of individuals")
	f.Int64Var(&req.Seed, "seed", 0, "batch seed")
	f.IntVar(&req.Workers, "workers", 4, "concurrent workers")
	f.IntVar(&req.MaxAttempts, "max-attempts", 0, "unroll attempts per individual (0 = default)")
	f.IntVar(&req.MaxDepth, "max-depth", 0, "maximum unroll depth (0 = default)")
	f.BoolVar(&req.NodeInfo, "node-info", false, "annotate the text with node paths")
	f.BoolVar(&jsonOut, "json", false, "emit the summary as JSON")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var (
		req     gramforge.ShowRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the individuals of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(c *gramforge.Client) error {
				items, err := c.Show(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), items)
				}
				printIndividuals(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.RunID, "run-id", "", "run to show")
	f.BoolVar(&req.Latest, "latest", false, "show the most recent run")
	f.IntSliceVar(&req.Indexes, "index", nil, "individual indexes to show (default all)")
	f.BoolVar(&jsonOut, "json", false, "emit individuals as JSON")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var req gramforge.CheckRequest
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load a grammar and sample it to see how often it unrolls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			req.GrammarPath = pick(flags.Changed("grammar"), req.GrammarPath, a.cfg.Grammar)
			req.Top = pick(flags.Changed("top"), req.Top, a.cfg.Top)
			req.MaxAttempts = pick(flags.Changed("max-attempts"), req.MaxAttempts, a.cfg.MaxAttempts)
			req.MaxDepth = pick(flags.Changed("max-depth"), req.MaxDepth, a.cfg.MaxDepth)

			return a.withClient(cmd, func(c *gramforge.Client) error {
				summary, err := c.Check(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "top=%s types=%s generated=%d/%d unsatisfiable=%d attempts=%d success_rate=%.3f\n",
					summary.Top, strings.Join(summary.Types, ","), summary.Generated, summary.Samples,
					summary.Unsatisfiable, summary.Attempts.Attempts, summary.Attempts.SuccessRate)
				if summary.Degenerate {
					return fmt.Errorf("%w: %s", errDegenerateGrammar, summary.Top)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.GrammarPath, "grammar", "", "grammar file (YAML)")
	f.StringVar(&req.Top, "top", "", "type to sample; defaults to the grammar's top")
	f.IntVar(&req.Samples, "samples", 20, "individuals to sample")
	f.Int64Var(&req.Seed, "seed", 0, "sampling seed")
	f.IntVar(&req.MaxAttempts, "max-attempts", 0, "unroll attempts per individual (0 = default)")
	f.IntVar(&req.MaxDepth, "max-depth", 0, "maximum unroll depth (0 = default)")
	return cmd
}

func (a *app) mutateCmd() *cobra.Command {
	var (
		req      gramforge.MutateRequest
		strength float64
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "mutate",
		Short: "Generate one individual and apply mutation rounds to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			req.GrammarPath = pick(flags.Changed("grammar"), req.GrammarPath, a.cfg.Grammar)
			req.Top = pick(flags.Changed("top"), req.Top, a.cfg.Top)
			req.Seed = pick(flags.Changed("seed"), req.Seed, a.cfg.Seed)
			req.MaxAttempts = pick(flags.Changed("max-attempts"), req.MaxAttempts, a.cfg.MaxAttempts)
			req.MaxDepth = pick(flags.Changed("max-depth"), req.MaxDepth, a.cfg.MaxDepth)
			req.Strength = &strength

			return a.withClient(cmd, func(c *gramforge.Client) error {
				summary, err := c.Mutate(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, summary)
				}
				for _, step := range summary.Steps {
					status := "accepted"
					if !step.Accepted {
						status = "rejected: " + step.Reason
					}
					fmt.Fprintf(out, "round %d %s %s\n", step.Round, step.Operator, status)
				}
				fmt.Fprintln(out, "--- parent")
				fmt.Fprint(out, summary.Parent.Text)
				fmt.Fprintln(out, "--- child")
				fmt.Fprint(out, summary.Child.Text)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.GrammarPath, "grammar", "", "grammar file (YAML)")
	f.StringVar(&req.Top, "top", "", "type to generate; defaults to the grammar's top")
	f.Int64Var(&req.Seed, "seed", 0, "seed of the parent and of the mutations")
	f.IntVar(&req.Rounds, "rounds", 1, "mutation rounds")
	f.Float64Var(&strength, "strength", 1, "parameter mutation strength in [0, 1]")
	f.StringVar(&req.Operator, "operator", "", "restrict rounds to one operator")
	f.IntVar(&req.MaxAttempts, "max-attempts", 0, "unroll attempts (0 = default)")
	f.IntVar(&req.MaxDepth, "max-depth", 0, "maximum unroll depth (0 = default)")
	f.BoolVar(&jsonOut, "json", false, "emit the summary as JSON")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var (
		req     gramforge.RunsRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return a.withClient(cmd, func(c *gramforge.Client) error {
				items, err := c.Runs(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(out, "no runs found")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(out, "%s created=%s top=%s seed=%d count=%d workers=%d success_rate=%.3f\n",
						item.RunID, item.CreatedAtUTC, item.Top, item.Seed, item.Count, item.Workers, item.SuccessRate)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&req.Limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var req gramforge.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of a run to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd, func(c *gramforge.Client) error {
				summary, err := c.Export(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run to export")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&req.OutDir, "out", "", "export directory (default --exports-dir)")
	return cmd
}

func printIndividuals(w io.Writer, items []gramforge.IndividualItem) {
	for _, item := range items {
		fmt.Fprintf(w, "--- individual %d %s attempts=%d frames=%d macros=%d parameters=%d links=%d\n",
			item.Index, item.ID, item.Attempts, item.Frames, item.Macros, item.Parameters, item.Links)
		fmt.Fprint(w, item.Text)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
