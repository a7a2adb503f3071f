// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/config"
	"github.com/xkilldash9x/pentest-crew/internal/orchestrator"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeRoot(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "pentest-crew version "+Version)
}

func TestVersionCmd(t *testing.T) {
	out, err := executeRoot(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pentest-crew "+Version)
}

func TestRootCmd_MalformedConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pentest-crew.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logger: [unterminated\n"), 0o644))
	_, err := executeRoot(t, "", "--config", cfgPath, "phases")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestRootCmd_InvalidConfiguration(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "orchestrator:\n  interaction: sometimes\n")
	_, err := executeRoot(t, "", "--config", cfgPath, "phases")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orchestrator.interaction must be 'always' or 'never'")
}

// -- Interactive menu --

func TestMenu_InvalidChoice(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	out, err := executeRoot(t, "9\n", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Select a phase to execute (1-4)")
	assert.Contains(t, out, "Invalid choice")
}

func TestMenu_ClosedInput(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	out, err := executeRoot(t, "", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "Invalid choice")
}

func TestMenuChoice(t *testing.T) {
	for choice, want := range map[string]schemas.PhaseName{
		"1": schemas.PhaseRecon,
		"2": schemas.PhaseVulnScan,
		"3": schemas.PhaseExploit,
		"4": schemas.PhaseReport,
	} {
		got, ok := menuChoice(choice)
		assert.True(t, ok, choice)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "0", "5", "recon"} {
		_, ok := menuChoice(bad)
		assert.False(t, ok, bad)
	}
}

// -- run --

func TestRunCmd_ArgumentErrors(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")

	_, err := executeRoot(t, "", "--config", cfgPath, "run")
	assert.Error(t, err, "a phase argument is required")

	_, err = executeRoot(t, "", "--config", cfgPath, "run", "fuzzing")
	assert.Error(t, err)

	_, err = executeRoot(t, "", "--config", cfgPath, "run", "recon", "--interaction", "sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interaction mode must be")
}

func TestApplyOverrides(t *testing.T) {
	app := &application{cfg: config.NewDefaultConfig()}
	runCmd := newRunCmd(app)
	require.NoError(t, runCmd.ParseFlags([]string{"--target", " http://localhost:8085 ", "--interaction", "never", "--crawl"}))

	opts := &runOptions{target: " http://localhost:8085 ", interaction: "never", crawl: true}
	require.NoError(t, app.applyOverrides(runCmd, opts))

	assert.Equal(t, "http://localhost:8085", app.cfg.PhasesCfg.Target)
	assert.Equal(t, "never", app.cfg.OrchestratorCfg.Interaction)
	assert.True(t, app.cfg.PhasesCfg.Recon.Crawl)
}

func TestApplyOverrides_UnchangedFlagsKeepConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.PhasesCfg.Target = "http://configured"
	app := &application{cfg: cfg}
	runCmd := newRunCmd(app)
	require.NoError(t, runCmd.ParseFlags(nil))

	require.NoError(t, app.applyOverrides(runCmd, &runOptions{}))
	assert.Equal(t, "http://configured", cfg.PhasesCfg.Target)
	assert.Equal(t, "always", cfg.OrchestratorCfg.Interaction)
}

func TestInWorkDir(t *testing.T) {
	assert.Equal(t, "/work/pentest_results", inWorkDir("/work", "pentest_results"))
	assert.Equal(t, "/abs/header.txt", inWorkDir("/work", "/abs/header.txt"))
	assert.Equal(t, "", inWorkDir("/work", ""))
}

func TestPrintOutcome(t *testing.T) {
	render := func(out orchestrator.Outcome, err error) string {
		var buf bytes.Buffer
		printOutcome(&buf, out, err)
		return buf.String()
	}

	done := render(orchestrator.Outcome{
		Phase:      schemas.PhaseRecon,
		RunID:      uuid.New(),
		Reason:     orchestrator.ReasonSentinel,
		Stage:      "terminated",
		Rounds:     17,
		Target:     "http://localhost:8085",
		ReportPath: "pentest_results/reports/recon_report.txt",
		Duration:   time.Minute,
	}, nil)
	assert.Contains(t, done, "=== recon phase complete ===")
	assert.Contains(t, done, "Report: pentest_results/reports/recon_report.txt")
	assert.Contains(t, done, "Run ID: ")

	forced := render(orchestrator.Outcome{Phase: schemas.PhaseVulnScan, Reason: orchestrator.ReasonRoundCap, Stage: "awaiting_command"}, nil)
	assert.Contains(t, forced, "stopped (round_cap)")
	assert.Contains(t, forced, "Warning: the phase ended before its workflow completed.")

	failed := render(orchestrator.Outcome{Phase: schemas.PhaseExploit}, errors.New("boom"))
	assert.Contains(t, failed, "failed ===")
	assert.Contains(t, failed, "Error: boom")
	assert.NotContains(t, failed, "Run ID")
}

func TestCrewComponents_ShutdownWithoutServices(t *testing.T) {
	c := &crewComponents{}
	assert.NotPanics(t, c.Shutdown)
	assert.Nil(t, c.archive())
}

// -- phases --

func TestPhasesCmd(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "phases:\n  recon:\n    crawl: true\n")
	out, err := executeRoot(t, "", "--config", cfgPath, "phases", "recon", "report")
	require.NoError(t, err)

	assert.Contains(t, out, "phase: recon")
	assert.Contains(t, out, "phase: report")
	assert.Contains(t, out, "name: Nmap-Agent")
	assert.Contains(t, out, "name: hakrawler")
	assert.Contains(t, out, "- save_report")
	assert.Contains(t, out, "activation: confirm-each-turn")
	assert.NotContains(t, out, "phase: vulnscan")
}

func TestPhasesCmd_NeverModeUsesPlaceholder(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "orchestrator:\n  interaction: never\n")
	out, err := executeRoot(t, "", "--config", cfgPath, "phases", "exploit")
	require.NoError(t, err)
	assert.Contains(t, out, "{target}")
	assert.Contains(t, out, "- analyze_and_capture_url")
	assert.Contains(t, out, "name: sqlmap-root")
}

func TestPhasesCmd_UnknownPhase(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	_, err := executeRoot(t, "", "--config", cfgPath, "phases", "fuzzing")
	assert.Error(t, err)
}
