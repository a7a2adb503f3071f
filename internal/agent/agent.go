// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/approval"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/executor"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

// Expectation is the shape of output the orchestrator wants from a turn.
type Expectation string

const (
	ExpectTarget      Expectation = "target"      // The engagement target.
	ExpectCommand     Expectation = "command"     // Exactly one fenced command block.
	ExpectVerdict     Expectation = "verdict"     // Approval or rejection of a candidate command.
	ExpectDecision    Expectation = "decision"    // Operator decision on a validated command.
	ExpectExecution   Expectation = "execution"   // Result of running the approved command.
	ExpectToolCall    Expectation = "tool_call"   // An invocation of a registered tool.
	ExpectReport      Expectation = "report"      // A report saved through save_report.
	ExpectTermination Expectation = "termination" // The termination sentinel.
)

// Turn is everything an agent sees when it is asked to speak.
type Turn struct {
	// Messages is the visible transcript; Window bounds how much of it is
	// rendered into a prompt.
	Messages []conversation.Message
	Window   int
	// Directive is the instruction for this turn. It is not persisted.
	Directive string
	Expect    Expectation
	// Command is the command under review (decision) or to run (execution).
	Command string
	// Tool names the tool the step expects to be called.
	Tool string
	// Review overrides the request a human proxy puts in front of the
	// operator for a decision turn.
	Review *approval.Request
}

// Spec is the static description of an agent. It is fixed at construction.
type Spec struct {
	Name         string             `yaml:"name"`
	Role         schemas.Role       `yaml:"role"`
	Activation   schemas.Activation `yaml:"activation"`
	SystemPrompt string             `yaml:"-"`
	Tier         schemas.ModelTier  `yaml:"tier,omitempty"`
	Tools        *tools.Table       `yaml:"-"`
}

// CommandRunner runs approved shell commands. *executor.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, command string) (executor.Result, error)
}

// Deps are the collaborators a role may need. Only the ones its role uses
// must be set.
type Deps struct {
	LLM      schemas.LLMClient
	Runner   CommandRunner
	Gate     approval.Gate
	Sentinel string
	Logger   *zap.Logger
}

// Participant is a member of a group chat.
type Participant interface {
	Name() string
	Role() schemas.Role
	Activation() schemas.Activation
	Tools() *tools.Table
	// ProduceTurn returns the agent's message for this turn. The message is
	// not yet classified or appended; the orchestrator does both.
	ProduceTurn(ctx context.Context, turn Turn) (conversation.Message, error)
}

// behavior is the role-specific part of an agent. The set of implementations is closed.
type behavior interface {
	produce(ctx context.Context, a *Agent, turn Turn) (conversation.Message, error)
}

// Agent is the single Participant implementation. Its behavior is selected by role.
type Agent struct {
	spec     Spec
	behavior behavior
	logger   *zap.Logger
}

var _ Participant = (*Agent)(nil)

// New builds an agent, checking that the collaborators its role needs are present.
func New(spec Spec, deps Deps) (*Agent, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("agent requires a name")
	}
	if !spec.Role.Valid() {
		return nil, fmt.Errorf("agent %s: unknown role %q", spec.Name, spec.Role)
	}
	activation, err := schemas.ParseActivation(string(spec.Activation))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
	}
	spec.Activation = activation
	if spec.Tools == nil {
		spec.Tools, _ = tools.NewTable()
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var b behavior
	switch spec.Role {
	case schemas.RoleGenerator, schemas.RoleValidator, schemas.RoleReader, schemas.RoleWriter:
		if deps.LLM == nil {
			return nil, fmt.Errorf("agent %s: role %s requires an LLM client", spec.Name, spec.Role)
		}
		if spec.Tier == "" {
			spec.Tier = defaultTier(spec.Role)
		}
		b = llmBehavior{client: deps.LLM}
	case schemas.RoleExecutor:
		if deps.Runner == nil {
			return nil, fmt.Errorf("agent %s: executor requires a command runner", spec.Name)
		}
		b = execBehavior{runner: deps.Runner}
	case schemas.RoleHumanProxy:
		if deps.Gate == nil {
			return nil, fmt.Errorf("agent %s: human proxy requires an approval gate", spec.Name)
		}
		b = humanBehavior{gate: deps.Gate, sentinel: deps.Sentinel}
	case schemas.RoleManager:
		if deps.Sentinel == "" {
			return nil, fmt.Errorf("agent %s: manager requires a termination sentinel", spec.Name)
		}
		b = managerBehavior{sentinel: deps.Sentinel}
	}

	return &Agent{
		spec:     spec,
		behavior: b,
		logger:   logger.Named("agent").With(zap.String("agent", spec.Name)),
	}, nil
}

func defaultTier(role schemas.Role) schemas.ModelTier {
	switch role {
	case schemas.RoleValidator, schemas.RoleReader:
		return schemas.TierFast
	default:
		return schemas.TierPowerful
	}
}

func (a *Agent) Name() string                   { return a.spec.Name }
func (a *Agent) Role() schemas.Role             { return a.spec.Role }
func (a *Agent) Activation() schemas.Activation { return a.spec.Activation }
func (a *Agent) Tools() *tools.Table            { return a.spec.Tools }
func (a *Agent) Spec() Spec                     { return a.spec }

// ProduceTurn delegates to the role behavior and stamps the sender fields.
func (a *Agent) ProduceTurn(ctx context.Context, turn Turn) (conversation.Message, error) {
	if a.spec.Activation == schemas.ActivationNeverSpeaks {
		return conversation.Message{}, fmt.Errorf("agent %s never speaks", a.spec.Name)
	}
	a.logger.Debug("Producing turn", zap.String("expect", string(turn.Expect)))

	msg, err := a.behavior.produce(ctx, a, turn)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("agent %s: %w", a.spec.Name, err)
	}
	msg.Sender = a.spec.Name
	msg.SenderRole = a.spec.Role
	if msg.ChatRole == "" {
		msg.ChatRole = schemas.ChatRoleAssistant
	}
	return msg, nil
}
