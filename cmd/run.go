package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/approval"
	"github.com/xkilldash9x/pentest-crew/internal/browser"
	"github.com/xkilldash9x/pentest-crew/internal/executor"
	"github.com/xkilldash9x/pentest-crew/internal/llmclient"
	"github.com/xkilldash9x/pentest-crew/internal/observability"
	"github.com/xkilldash9x/pentest-crew/internal/orchestrator"
	"github.com/xkilldash9x/pentest-crew/internal/phase"
	"github.com/xkilldash9x/pentest-crew/internal/results"
	"github.com/xkilldash9x/pentest-crew/internal/store"
)

const menuText = `=== PENTESTING WORKFLOW ===
1. Reconnaissance
2. Vulnerability Scanning
3. Exploitation
4. Reporting
============================
Select a phase to execute (1-4): `

// runOptions are the per-invocation overrides of the run command.
type runOptions struct {
	target      string
	interaction string
	crawl       bool
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(app *application) *cobra.Command {
	opts := &runOptions{}
	runCmd := &cobra.Command{
		Use:       "run <phase>",
		Short:     "Runs one engagement phase: recon, vulnscan, exploit or report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: phaseNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := schemas.ParsePhaseName(args[0])
			if err != nil {
				return err
			}
			if err := app.applyOverrides(cmd, opts); err != nil {
				return err
			}
			return app.runPhase(cmd, name)
		},
	}

	runCmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target URL or IP address. (Overrides config/env)")
	runCmd.Flags().StringVarP(&opts.interaction, "interaction", "i", "", "Human interaction mode, 'always' or 'never'. (Overrides config/env)")
	runCmd.Flags().BoolVar(&opts.crawl, "crawl", false, "Add the hakrawler step to recon. (Overrides config/env)")
	return runCmd
}

func phaseNames() []string {
	names := make([]string, 0, len(schemas.AllPhases))
	for _, p := range schemas.AllPhases {
		names = append(names, string(p))
	}
	return names
}

// applyOverrides copies explicitly set flags onto the loaded configuration.
func (a *application) applyOverrides(cmd *cobra.Command, opts *runOptions) error {
	flags := cmd.Flags()
	if flags.Changed("target") {
		a.cfg.SetTarget(strings.TrimSpace(opts.target))
	}
	if flags.Changed("interaction") {
		mode, err := schemas.ParseInteractionMode(opts.interaction)
		if err != nil {
			return err
		}
		a.cfg.SetInteraction(string(mode))
	}
	if flags.Changed("crawl") {
		a.cfg.SetReconCrawl(opts.crawl)
	}
	return nil
}

// runMenu shows the phase menu, runs the selected phase and returns. Workflow
// failures are printed, never returned, so the menu always exits cleanly.
func (a *application) runMenu(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, menuText)

	line, err := a.input.ReadString('\n')
	choice := strings.TrimSpace(line)
	if err != nil && choice == "" {
		fmt.Fprintln(out)
		return nil
	}

	name, ok := menuChoice(choice)
	if !ok {
		fmt.Fprintln(out, "Invalid choice")
		return nil
	}
	if err := a.runPhase(cmd, name); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Phase %s failed: %v\n", name, err)
	}
	return nil
}

// menuChoice maps "1".."4" onto the engagement phases.
func menuChoice(choice string) (schemas.PhaseName, bool) {
	for i, p := range schemas.AllPhases {
		if choice == fmt.Sprint(i+1) {
			return p, true
		}
	}
	return "", false
}

// runPhase wires the components, runs one phase and prints its outcome.
func (a *application) runPhase(cmd *cobra.Command, name schemas.PhaseName) error {
	ctx := cmd.Context()
	logger := observability.Component("crew")

	components, err := a.initializeComponents(ctx, cmd.OutOrStdout(), logger)
	if err != nil {
		if components != nil {
			components.Shutdown()
		}
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	out, err := phase.NewRunner(components.Env, components.archive()).Run(ctx, name)
	printOutcome(cmd.OutOrStdout(), out, err)
	return err
}

// crewComponents holds initialized services.
type crewComponents struct {
	Env    phase.Env
	LLM    schemas.LLMClient
	Store  *store.Store
	DBPool *pgxpool.Pool
}

func (c *crewComponents) archive() phase.Archiver {
	if c.Store == nil {
		return nil
	}
	return c.Store
}

// Shutdown releases the LLM clients and the database pool.
func (c *crewComponents) Shutdown() {
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			observability.GetLogger().Warn("Error closing LLM client", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
}

// initializeComponents handles dependency injection.
func (a *application) initializeComponents(ctx context.Context, out io.Writer, logger *zap.Logger) (*crewComponents, error) {
	cfg := a.cfg
	ws := cfg.Workspace()
	workDir := ws.ResolveWorkDir()
	components := &crewComponents{}

	// 1. LLM client stack
	llm, err := llmclient.NewFromConfig(ctx, cfg.LLM(), logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	components.LLM = llm

	// 2. Executor, form analyzer and the operator console
	layout := results.NewLayout(inWorkDir(workDir, ws.ResultsDir))
	analyzer := browser.NewFormAnalyzer(cfg.Browser(),
		inWorkDir(workDir, ws.HeaderFile), inWorkDir(workDir, ws.CapturedURLFile), logger)

	components.Env = phase.Env{
		Config:   cfg,
		Layout:   layout,
		LLM:      llm,
		Runner:   executor.NewRunner(cfg.Executor(), workDir, logger),
		Gate:     approval.NewConsoleGate(a.input, out, cfg.Orchestrator().Sentinel),
		Capturer: analyzer,
		Logger:   logger,
	}

	// 3. Optional transcript archive
	if url := cfg.Database().URL; url != "" {
		if err := components.openArchive(ctx, url, logger); err != nil {
			logger.Warn("Transcript archive unavailable, continuing without it", zap.Error(err))
		}
	}
	return components, nil
}

func (c *crewComponents) openArchive(ctx context.Context, url string, logger *zap.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(dbCtx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s, err := store.New(dbCtx, pool, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := s.EnsureSchema(dbCtx); err != nil {
		pool.Close()
		return err
	}
	c.DBPool, c.Store = pool, s
	return nil
}

// inWorkDir resolves relative workspace paths against the command working
// directory, so scan commands and file tools agree on locations.
func inWorkDir(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

// printOutcome writes the end-of-phase summary for the operator.
func printOutcome(w io.Writer, out orchestrator.Outcome, err error) {
	fmt.Fprintf(w, "\n=== %s phase ", out.Phase)
	switch {
	case err != nil:
		fmt.Fprintln(w, "failed ===")
		fmt.Fprintf(w, "Error: %v\n", err)
	case out.Forced():
		fmt.Fprintf(w, "stopped (%s) ===\n", out.Reason)
		fmt.Fprintln(w, "Warning: the phase ended before its workflow completed.")
	default:
		fmt.Fprintln(w, "complete ===")
	}
	if out.Stage != "" {
		fmt.Fprintf(w, "Stage: %s, rounds: %d\n", out.Stage, out.Rounds)
	}
	if out.Target != "" {
		fmt.Fprintf(w, "Target: %s\n", out.Target)
	}
	if out.ReportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", out.ReportPath)
	}
	if out.RunID != uuid.Nil {
		fmt.Fprintf(w, "Run ID: %s\n", out.RunID)
	}
}
