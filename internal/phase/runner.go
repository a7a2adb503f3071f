// internal/phase/runner.go
package phase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/orchestrator"
	"github.com/xkilldash9x/pentest-crew/internal/results"
)

const archiveTimeout = 30 * time.Second

// Archiver persists finished runs. store.Store implements it.
type Archiver interface {
	SaveRun(ctx context.Context, rec results.RunRecord) error
}

// Runner executes one phase end to end: target resolution, assembly, the
// group chat, then transcript export and archiving.
type Runner struct {
	env     Env
	archive Archiver
	logger  *zap.Logger
}

// NewRunner creates a runner. archive may be nil.
func NewRunner(env Env, archive Archiver) *Runner {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	return &Runner{env: env, archive: archive, logger: env.Logger.Named("phase")}
}

// Run executes the named phase. The outcome is returned alongside any error so
// that callers can report how far a failed run got.
func (r *Runner) Run(ctx context.Context, name schemas.PhaseName) (orchestrator.Outcome, error) {
	if err := r.env.Layout.EnsureDirectories(); err != nil {
		return orchestrator.Outcome{Phase: name}, err
	}
	target, err := ResolveTarget(ctx, name, r.env)
	if err != nil {
		return orchestrator.Outcome{Phase: name}, fmt.Errorf("resolving target: %w", err)
	}
	bp, err := Plan(name, r.env, target)
	if err != nil {
		return orchestrator.Outcome{Phase: name}, err
	}
	roster, err := Build(bp, agent.Deps{
		LLM:      r.env.LLM,
		Runner:   r.env.Runner,
		Gate:     GateFor(r.env, target),
		Sentinel: bp.Policy.Sentinel,
		Logger:   r.env.Logger,
	})
	if err != nil {
		return orchestrator.Outcome{Phase: name}, fmt.Errorf("building %s roster: %w", name, err)
	}
	orch, err := orchestrator.New(bp.Policy, roster, r.env.Logger)
	if err != nil {
		return orchestrator.Outcome{Phase: name}, err
	}

	r.logger.Info("Starting phase",
		zap.String("phase", string(name)),
		zap.String("target", target),
		zap.String("interaction", string(r.env.interaction())),
		zap.Int("plans", len(bp.Policy.Plans)))

	t := conversation.NewTranscript()
	started := time.Now().UTC()
	out, runErr := orch.Run(ctx, t)
	if out.Forced() {
		if last, ok := t.Last(); ok {
			r.logger.Warn("Phase ended before its workflow completed",
				zap.String("reason", string(out.Reason)),
				zap.String("stage", out.Stage),
				zap.String("last_sender", last.Sender),
				zap.String("last_intent", string(last.Intent)),
				zap.String("last_reason", last.Reason))
		}
	}

	rec := results.RunRecord{
		RunID:      out.RunID,
		Phase:      name,
		Reason:     string(out.Reason),
		Stage:      out.Stage,
		Rounds:     out.Rounds,
		Target:     out.Target,
		ReportPath: out.ReportPath,
		StartedAt:  started,
		Duration:   out.Duration,
		Messages:   t.Messages(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	r.persist(ctx, rec)
	return out, runErr
}

// persist exports and archives rec. Failures are logged, never returned: the
// run itself already happened.
func (r *Runner) persist(ctx context.Context, rec results.RunRecord) {
	if r.env.Config.Workspace().ExportTranscripts {
		if path, err := r.env.Layout.ExportTranscript(rec); err != nil {
			r.logger.Warn("Failed to export transcript", zap.Error(err))
		} else {
			r.logger.Info("Transcript exported", zap.String("path", path))
		}
	}
	if r.archive == nil {
		return
	}
	// Archive even when the run was cancelled.
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := r.archive.SaveRun(archiveCtx, rec); err != nil {
		r.logger.Warn("Failed to archive run", zap.String("run_id", rec.RunID.String()), zap.Error(err))
	}
}
