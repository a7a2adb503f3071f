// internal/phase/phase.go
// Description: Builds the roster and policy of each engagement phase from
// configuration. Phases share data only through the results layout.

package phase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/approval"
	"github.com/xkilldash9x/pentest-crew/internal/config"
	"github.com/xkilldash9x/pentest-crew/internal/orchestrator"
	"github.com/xkilldash9x/pentest-crew/internal/results"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

// Agent names shared by several phases.
const (
	UserProxy    = "User-Proxy"
	FileReader   = "File-Reader"
	CodeExecutor = "Code-Executor"
	ReportWriter = "Report-Writer"
)

// ErrTargetRequired is returned when interaction is "never" and no target
// could be found in configuration or earlier phase reports.
var ErrTargetRequired = errors.New("a target is required when interaction is never")

// Env carries the collaborators phases are assembled from.
type Env struct {
	Config config.Interface
	Layout results.Layout
	// LLM backs every model-driven agent.
	LLM    schemas.LLMClient
	Runner agent.CommandRunner
	// Gate is the operator console used when interaction is "always".
	Gate     approval.Gate
	Capturer tools.URLCapturer
	Logger   *zap.Logger
}

func (e Env) interaction() schemas.InteractionMode {
	return schemas.InteractionMode(e.Config.Orchestrator().Interaction)
}

// headerFile is the cookie header path, resolved against the work directory.
func (e Env) headerFile() string {
	ws := e.Config.Workspace()
	if filepath.IsAbs(ws.HeaderFile) {
		return ws.HeaderFile
	}
	return filepath.Join(ws.ResolveWorkDir(), ws.HeaderFile)
}

// Blueprint is a phase before any collaborator is bound: agent specs with
// their capability tables, and the policy that schedules them.
type Blueprint struct {
	Policy orchestrator.Policy `yaml:"policy"`
	Agents []agent.Spec        `yaml:"agents"`
}

// Plan returns the blueprint of the named phase. An empty target leaves the
// recon phase to ask the human proxy for it.
func Plan(name schemas.PhaseName, env Env, target string) (Blueprint, error) {
	if env.interaction() == schemas.InteractionNever && target == "" {
		return Blueprint{}, ErrTargetRequired
	}
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	b := &blueprint{env: env, target: target}
	var err error
	switch name {
	case schemas.PhaseRecon:
		err = b.recon()
	case schemas.PhaseVulnScan:
		err = b.vulnScan()
	case schemas.PhaseExploit:
		err = b.exploit()
	case schemas.PhaseReport:
		err = b.report()
	default:
		return Blueprint{}, fmt.Errorf("unknown phase %q", name)
	}
	if err != nil {
		return Blueprint{}, fmt.Errorf("assembling %s phase: %w", name, err)
	}
	return b.bp, nil
}

// Build turns a blueprint's specs into live agents sharing deps.
func Build(bp Blueprint, deps agent.Deps) ([]agent.Participant, error) {
	roster := make([]agent.Participant, 0, len(bp.Agents))
	for _, spec := range bp.Agents {
		a, err := agent.New(spec, deps)
		if err != nil {
			return nil, err
		}
		roster = append(roster, a)
	}
	return roster, nil
}

// GateFor picks the decision point for the configured interaction mode.
func GateFor(env Env, target string) approval.Gate {
	if env.interaction() == schemas.InteractionNever || env.Gate == nil {
		return approval.AutoGate{Target: target}
	}
	return env.Gate
}

// ResolveTarget finds the engagement target: configuration first, then the
// first line of the recon report for later phases, then the operator. Recon
// returns "" so that the human proxy asks inside the conversation.
func ResolveTarget(ctx context.Context, name schemas.PhaseName, env Env) (string, error) {
	if t := env.Config.Phases().Target; t != "" {
		return t, nil
	}
	if name == schemas.PhaseRecon {
		return "", nil
	}
	t, err := env.Layout.ReconTarget()
	if err != nil {
		return "", err
	}
	if t != "" {
		return t, nil
	}
	if env.interaction() == schemas.InteractionNever || env.Gate == nil {
		return "", ErrTargetRequired
	}
	return env.Gate.AskTarget(ctx, fmt.Sprintf("No recon report found. Target URL or IP address for the %s phase", name))
}

// blueprint accumulates agents and policy for one phase.
type blueprint struct {
	env    Env
	target string
	bp     Blueprint
}

func (b *blueprint) policy(name schemas.PhaseName, seed string, roundCap int, manager string) {
	oc := b.env.Config.Orchestrator()
	b.bp.Policy = orchestrator.Policy{
		Phase:        name,
		Seed:         seed,
		Sentinel:     oc.Sentinel,
		RoundCap:     roundCap,
		MaxRetries:   oc.MaxRetries,
		MaxMalformed: oc.MaxMalformed,
		Window:       oc.TranscriptWindow,
		HumanProxy:   UserProxy,
		Manager:      manager,
		Target:       b.target,
	}
}

func (b *blueprint) add(spec agent.Spec) {
	b.bp.Agents = append(b.bp.Agents, spec)
}

// confirming is the activation of agents a human reviews in "always" mode.
func (b *blueprint) confirming() schemas.Activation {
	if b.env.interaction() == schemas.InteractionAlways {
		return schemas.ActivationConfirmEachTurn
	}
	return schemas.ActivationAutomatic
}

func (b *blueprint) addUserProxy() {
	b.add(agent.Spec{Name: UserProxy, Role: schemas.RoleHumanProxy, Activation: b.confirming(), SystemPrompt: userProxyPrompt})
}

func (b *blueprint) addManager(name string) {
	b.add(agent.Spec{
		Name:         name,
		Role:         schemas.RoleManager,
		SystemPrompt: fmt.Sprintf("You coordinate the %s phase and end it once every step is done.", b.bp.Policy.Phase),
	})
}

func (b *blueprint) addExecutor() {
	b.add(agent.Spec{Name: CodeExecutor, Role: schemas.RoleExecutor})
}

func (b *blueprint) addReader(extra ...tools.Tool) error {
	table, err := tools.NewTable(append([]tools.Tool{tools.NewReadFileTool(b.env.Layout.Root)}, extra...)...)
	if err != nil {
		return err
	}
	b.add(agent.Spec{Name: FileReader, Role: schemas.RoleReader, SystemPrompt: fileReaderPrompt, Tools: table})
	return nil
}

func (b *blueprint) addWriter(prompt, filename, directive string) error {
	table, err := tools.NewTable(tools.NewSaveReportTool(b.env.Layout.Reports(), filename))
	if err != nil {
		return err
	}
	b.add(agent.Spec{
		Name:         ReportWriter,
		Role:         schemas.RoleWriter,
		Activation:   b.confirming(),
		SystemPrompt: prompt,
		Tools:        table,
	})
	b.bp.Policy.Report = &orchestrator.ReportStep{Writer: ReportWriter, Filename: filename, Directive: directive}
	return nil
}

func (b *blueprint) addGenerator(name, prompt string) {
	b.add(agent.Spec{Name: name, Role: schemas.RoleGenerator, SystemPrompt: prompt})
}

func (b *blueprint) addValidator(name string) {
	b.add(agent.Spec{Name: name, Role: schemas.RoleValidator, SystemPrompt: checkerPrompt})
}

func readStep(file, what string) *orchestrator.CallStep {
	return &orchestrator.CallStep{
		Agent:     FileReader,
		Tool:      tools.ReadFileName,
		Directive: fmt.Sprintf("Read %s and summarize the %s results.", file, what),
	}
}

// endpoints lists directory scan results for the target, bounded by max. The
// base URL itself is scanned when the directory scan found nothing.
func (b *blueprint) endpoints(max int) ([]tools.Endpoint, error) {
	found, err := tools.ExtractEndpoints(b.env.Layout.ReconFile("gobuster"), b.target)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return []tools.Endpoint{{Name: "root", URL: b.target}}, nil
	}
	if max > 0 && len(found) > max {
		b.env.Logger.Info("Endpoint list truncated",
			zap.Int("found", len(found)), zap.Int("max_endpoints", max))
		found = found[:max]
	}
	return found, nil
}
