// File: internal/orchestrator/orchestrator.go
// Description: Turn-based group chat scheduler. The next speaker is derived
// from the transcript on every turn; nothing about progress is stored elsewhere.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/approval"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/llmutil"
)

// Reason explains why a phase stopped.
type Reason string

const (
	// ReasonSentinel is an explicit end: the human proxy or manager sent the sentinel.
	ReasonSentinel Reason = "sentinel"
	// ReasonRoundCap is a forced end: the round counter reached the phase cap.
	ReasonRoundCap Reason = "round_cap"
	// ReasonStalled is a forced end after too many malformed turns on one step.
	ReasonStalled Reason = "stalled"
	// ReasonAborted means an agent failed or the context was cancelled.
	ReasonAborted Reason = "aborted"
)

// Outcome summarizes a finished phase.
type Outcome struct {
	Phase      schemas.PhaseName `json:"phase"`
	RunID      uuid.UUID         `json:"run_id"`
	Reason     Reason            `json:"reason"`
	Stage      string            `json:"stage"`
	Rounds     int               `json:"rounds"`
	Target     string            `json:"target,omitempty"`
	ReportPath string            `json:"report_path,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Forced reports whether the phase was stopped rather than concluded.
func (o Outcome) Forced() bool {
	return o.Reason == ReasonRoundCap || o.Reason == ReasonStalled
}

// Orchestrator drives one phase over a transcript.
type Orchestrator struct {
	policy Policy
	roster map[string]agent.Participant
	logger *zap.Logger
}

// New validates the policy against the roster.
func New(policy Policy, roster []agent.Participant, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with a nil logger")
	}
	byName := make(map[string]agent.Participant, len(roster))
	for _, p := range roster {
		if _, dup := byName[p.Name()]; dup {
			return nil, fmt.Errorf("%w: agent name %q is not unique", ErrInvalidPolicy, p.Name())
		}
		byName[p.Name()] = p
	}
	if err := policy.Validate(byName); err != nil {
		return nil, err
	}
	return &Orchestrator{
		policy: policy,
		roster: byName,
		logger: logger.Named("orchestrator").With(zap.String("phase", string(policy.Phase))),
	}, nil
}

// Policy returns the policy the orchestrator schedules.
func (o *Orchestrator) Policy() Policy { return o.policy }

// Run drives the phase until the sentinel, the round cap or an error. An empty
// transcript is seeded first; a non-empty one is resumed where it left off.
func (o *Orchestrator) Run(ctx context.Context, t *conversation.Transcript) (Outcome, error) {
	start := time.Now()
	if t.Len() == 0 {
		t.Append(conversation.Message{
			Sender:     o.policy.HumanProxy,
			SenderRole: schemas.RoleHumanProxy,
			ChatRole:   schemas.ChatRoleUser,
			Content:    expand(o.policy.Seed, o.policy.Target),
			Intent:     conversation.IntentSeed,
		})
	}
	o.logger.Info("Phase started", zap.String("run_id", t.RunID().String()), zap.Int("round_cap", o.policy.RoundCap))

	finish := func(reason Reason, err error) (Outcome, error) {
		msgs := t.Messages()
		s := Replay(o.policy, msgs)
		out := Outcome{
			Phase:      o.policy.Phase,
			RunID:      t.RunID(),
			Reason:     reason,
			Stage:      s.Stage.String(),
			Rounds:     s.Rounds,
			Target:     s.Target,
			ReportPath: s.ReportPath,
			Duration:   time.Since(start),
		}
		if err == nil {
			if auditErr := conversation.Audit(msgs); auditErr != nil {
				err = auditErr
			}
		}
		fields := []zap.Field{
			zap.String("reason", string(reason)),
			zap.String("stage", out.Stage),
			zap.Int("rounds", out.Rounds),
			zap.Duration("duration", out.Duration),
		}
		switch {
		case err != nil:
			o.logger.Error("Phase ended with error", append(fields, zap.Error(err))...)
		case out.Forced():
			o.logger.Warn("Phase terminated without completing its workflow", fields...)
		default:
			o.logger.Info("Phase finished", fields...)
		}
		return out, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(ReasonAborted, err)
		}

		msgs := t.Messages()
		s := Replay(o.policy, msgs)
		if s.Stage == StageTerminated {
			return finish(ReasonSentinel, nil)
		}
		if s.Rounds >= o.policy.RoundCap {
			o.logger.Warn("Round cap reached", zap.Int("round_cap", o.policy.RoundCap), zap.String("stage", s.Stage.String()))
			return finish(ReasonRoundCap, nil)
		}
		if o.policy.MaxMalformed > 0 && s.Malformed >= o.policy.MaxMalformed {
			o.logger.Warn("Too many malformed turns on one step", zap.Int("max_malformed", o.policy.MaxMalformed), zap.String("stage", s.Stage.String()))
			return finish(ReasonStalled, nil)
		}

		as, ok := s.Next(o.policy)
		if !ok {
			return finish(ReasonSentinel, nil)
		}
		speaker := o.roster[as.Speaker]
		turn := agent.Turn{
			Messages:  msgs,
			Window:    o.policy.Window,
			Directive: as.Directive,
			Expect:    as.Expect,
			Command:   as.Command,
			Tool:      as.Tool,
		}
		if as.Expect == agent.ExpectDecision {
			turn.Review = &approval.Request{Agent: as.Subject, Role: schemas.RoleValidator, Kind: approval.KindCommand, Content: as.Command}
		}

		msg, err := speaker.ProduceTurn(ctx, turn)
		if err != nil {
			return finish(ReasonAborted, fmt.Errorf("phase %s aborted at %s: %w", o.policy.Phase, s.Stage, err))
		}
		msg = o.classify(speaker, as, s, msg)

		if o.needsConfirmation(speaker, msg) {
			approved, err := o.confirm(ctx, t, speaker, msg)
			if err != nil {
				return finish(ReasonAborted, fmt.Errorf("phase %s aborted at %s: %w", o.policy.Phase, s.Stage, err))
			}
			if !approved {
				continue
			}
		}

		if msg.Tool != nil && (msg.Intent == conversation.IntentToolCall || msg.Intent == conversation.IntentReport) {
			msg = o.invoke(ctx, speaker, msg)
		}
		o.record(t, msg, s.Stage)
	}
}

func (o *Orchestrator) needsConfirmation(speaker agent.Participant, msg conversation.Message) bool {
	if speaker.Activation() != schemas.ActivationConfirmEachTurn || speaker.Role() == schemas.RoleHumanProxy {
		return false
	}
	return msg.Intent != conversation.IntentMalformed && msg.Intent != conversation.IntentTermination
}

// confirm puts a confirm-each-turn agent's message in front of the operator
// through the human proxy. A rejected message is recorded as a note followed
// by the operator's decision, and the step is solicited again.
func (o *Orchestrator) confirm(ctx context.Context, t *conversation.Transcript, speaker agent.Participant, msg conversation.Message) (bool, error) {
	kind := approval.KindMessage
	switch msg.Intent {
	case conversation.IntentReport:
		kind = approval.KindReport
	case conversation.IntentCommand, conversation.IntentVerdict:
		kind = approval.KindCommand
	}
	content := msg.Content
	if kind == approval.KindReport {
		content = msg.Tool.Args["report_text"]
	}

	human := o.roster[o.policy.HumanProxy]
	decision, err := human.ProduceTurn(ctx, agent.Turn{
		Expect:  agent.ExpectDecision,
		Command: msg.Command,
		Review:  &approval.Request{Agent: speaker.Name(), Role: speaker.Role(), Kind: kind, Content: content},
	})
	if err != nil {
		return false, err
	}
	if decision.Approved {
		return true, nil
	}

	stage := Replay(o.policy, t.Messages()).Stage
	msg.Intent = conversation.IntentNote
	msg.Reason = "rejected by operator"
	o.record(t, msg, stage)
	if t.Rounds() >= o.policy.RoundCap {
		return false, nil
	}

	if llmutil.ContainsSentinel(decision.Content, o.policy.Sentinel) {
		decision.Intent = conversation.IntentTermination
	} else {
		decision.Intent = conversation.IntentDecision
	}
	o.record(t, decision, stage)
	return false, nil
}

func (o *Orchestrator) record(t *conversation.Transcript, msg conversation.Message, stage Stage) {
	appended := t.Append(msg)
	fields := []zap.Field{
		zap.Int("seq", appended.Seq),
		zap.String("sender", appended.Sender),
		zap.String("intent", string(appended.Intent)),
		zap.String("stage", stage.String()),
	}
	if appended.Reason != "" {
		fields = append(fields, zap.String("reason", appended.Reason))
	}
	if appended.Intent == conversation.IntentMalformed {
		o.logger.Warn("Malformed turn, re-soliciting", fields...)
		return
	}
	o.logger.Info("Turn recorded", fields...)
}
