// internal/orchestrator/policy.go
package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

// ErrInvalidPolicy is returned when a policy references agents or tools the
// roster cannot supply.
var ErrInvalidPolicy = errors.New("invalid phase policy")

// TargetPlaceholder is replaced with the engagement target in every directive.
const TargetPlaceholder = "{target}"

// CallStep is one tool invocation by one agent.
type CallStep struct {
	Agent     string `yaml:"agent"`
	Tool      string `yaml:"tool"`
	Directive string `yaml:"directive"`
}

// ToolPlan is the fixed checklist for one security tool:
// [inspect] -> generate -> validate -> approve -> execute -> [read].
type ToolPlan struct {
	Name      string    `yaml:"name"`
	Generator string    `yaml:"generator"`
	Validator string    `yaml:"validator"`
	Executor  string    `yaml:"executor"`
	Inspect   *CallStep `yaml:"inspect,omitempty"`
	Read      *CallStep `yaml:"read,omitempty"`
	// OutputFile is where the generated command must write its results.
	OutputFile string `yaml:"output_file"`
	Directive  string `yaml:"directive"`
}

// ReportStep is the writer's closing turn.
type ReportStep struct {
	Writer    string `yaml:"writer"`
	Filename  string `yaml:"filename"`
	Directive string `yaml:"directive"`
}

// Policy is everything the orchestrator needs to schedule one phase.
type Policy struct {
	Phase    schemas.PhaseName `yaml:"phase"`
	Seed     string            `yaml:"seed"`
	Sentinel string            `yaml:"sentinel"`
	RoundCap int               `yaml:"round_cap"`
	// MaxRetries is how many times a failed command goes back to its generator.
	MaxRetries int `yaml:"max_retries"`
	// MaxMalformed stops the phase after this many consecutive malformed
	// turns on one step. Zero disables the limit.
	MaxMalformed int `yaml:"max_malformed"`
	Window       int `yaml:"transcript_window"`

	HumanProxy string `yaml:"human_proxy"`
	// Manager announces the end of the phase. The human proxy does it when empty.
	Manager string `yaml:"manager,omitempty"`
	// Target is the engagement target when it is already known. The human
	// proxy is asked for it otherwise.
	Target string `yaml:"target,omitempty"`

	Preamble []CallStep  `yaml:"preamble,omitempty"`
	Plans    []ToolPlan  `yaml:"plans"`
	Report   *ReportStep `yaml:"report,omitempty"`
}

func (p Policy) concluder() string {
	if p.Manager != "" {
		return p.Manager
	}
	return p.HumanProxy
}

// Validate checks the policy against the roster that will run it.
func (p Policy) Validate(roster map[string]agent.Participant) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, fmt.Sprintf(format, args...))
	}

	if p.Sentinel == "" {
		return invalid("termination sentinel is required")
	}
	if p.RoundCap <= 0 {
		return invalid("round cap must be positive, got %d", p.RoundCap)
	}
	if p.MaxRetries < 0 || p.MaxMalformed < 0 {
		return invalid("retry limits must not be negative")
	}

	speaker := func(name string, role schemas.Role) error {
		a, ok := roster[name]
		if !ok {
			return invalid("agent %q is not in the roster", name)
		}
		if a.Role() != role {
			return invalid("agent %q has role %s, step needs %s", name, a.Role(), role)
		}
		if a.Activation() == schemas.ActivationNeverSpeaks {
			return invalid("agent %q never speaks but is scheduled", name)
		}
		return nil
	}
	caller := func(step CallStep) error {
		a, ok := roster[step.Agent]
		if !ok {
			return invalid("agent %q is not in the roster", step.Agent)
		}
		if a.Activation() == schemas.ActivationNeverSpeaks {
			return invalid("agent %q never speaks but is scheduled", step.Agent)
		}
		if !a.Role().UsesLLM() {
			return invalid("agent %q cannot call tools", step.Agent)
		}
		if !a.Tools().Has(step.Tool) {
			return invalid("tool %q is not registered for agent %q", step.Tool, step.Agent)
		}
		return nil
	}

	if err := speaker(p.HumanProxy, schemas.RoleHumanProxy); err != nil {
		return err
	}
	if p.Manager != "" {
		if err := speaker(p.Manager, schemas.RoleManager); err != nil {
			return err
		}
	}
	for _, step := range p.Preamble {
		if err := caller(step); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(p.Plans))
	for _, plan := range p.Plans {
		if plan.Name == "" || seen[plan.Name] {
			return invalid("tool plans need unique names, got %q", plan.Name)
		}
		seen[plan.Name] = true
		for _, s := range []struct {
			name string
			role schemas.Role
		}{
			{plan.Generator, schemas.RoleGenerator},
			{plan.Validator, schemas.RoleValidator},
			{plan.Executor, schemas.RoleExecutor},
		} {
			if err := speaker(s.name, s.role); err != nil {
				return fmt.Errorf("plan %s: %w", plan.Name, err)
			}
		}
		for _, step := range []*CallStep{plan.Inspect, plan.Read} {
			if step == nil {
				continue
			}
			if err := caller(*step); err != nil {
				return fmt.Errorf("plan %s: %w", plan.Name, err)
			}
		}
	}
	if p.Report != nil {
		if err := speaker(p.Report.Writer, schemas.RoleWriter); err != nil {
			return err
		}
		if !roster[p.Report.Writer].Tools().Has(tools.SaveReportName) {
			return invalid("report writer %q has no %s tool", p.Report.Writer, tools.SaveReportName)
		}
	}
	return nil
}

// expand substitutes the target into a directive.
func expand(s, target string) string {
	if target == "" {
		return s
	}
	return strings.ReplaceAll(s, TargetPlaceholder, target)
}
