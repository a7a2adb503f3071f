// api/schemas/roles.go
package schemas

import "fmt"

// Role is the protocol role an agent plays in a group chat. The set is closed:
// the orchestrator selects agent behavior and step eligibility by this tag.
type Role string

const (
	RoleGenerator  Role = "generator"   // Writes exactly one shell command for the current tool.
	RoleValidator  Role = "validator"   // Checks syntax and safety of the generated command.
	RoleExecutor   Role = "executor"    // Runs the approved command. Never calls an LLM.
	RoleReader     Role = "reader"      // Reads scan output and artifacts through read_file.
	RoleWriter     Role = "writer"      // Summarizes results and persists them through save_report.
	RoleHumanProxy Role = "human-proxy" // Supplies the target and approve/reject decisions.
	RoleManager    Role = "manager"     // Announces completion with the termination sentinel.
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{
	RoleGenerator, RoleValidator, RoleExecutor, RoleReader,
	RoleWriter, RoleHumanProxy, RoleManager,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// UsesLLM reports whether agents with this role produce turns through a language model.
func (r Role) UsesLLM() bool {
	switch r {
	case RoleGenerator, RoleValidator, RoleReader, RoleWriter:
		return true
	default:
		return false
	}
}

// Activation controls whether a human is consulted about an agent's turn.
type Activation string

const (
	ActivationAutomatic       Activation = "automatic"
	ActivationConfirmEachTurn Activation = "confirm-each-turn"
	ActivationNeverSpeaks     Activation = "never-speaks"
)

// ParseActivation converts a configuration value into an Activation.
func ParseActivation(s string) (Activation, error) {
	switch a := Activation(s); a {
	case ActivationAutomatic, ActivationConfirmEachTurn, ActivationNeverSpeaks:
		return a, nil
	case "":
		return ActivationAutomatic, nil
	default:
		return "", fmt.Errorf("unknown activation mode %q", s)
	}
}

// InteractionMode is the phase-wide human interaction setting exposed on the CLI.
type InteractionMode string

const (
	// InteractionAlways puts the human proxy and the report writer in confirm-each-turn.
	InteractionAlways InteractionMode = "always"
	// InteractionNever auto-approves every decision point.
	InteractionNever InteractionMode = "never"
)

// ParseInteractionMode validates a user supplied interaction mode.
func ParseInteractionMode(s string) (InteractionMode, error) {
	switch m := InteractionMode(s); m {
	case InteractionAlways, InteractionNever:
		return m, nil
	default:
		return "", fmt.Errorf("interaction mode must be %q or %q, got %q", InteractionAlways, InteractionNever, s)
	}
}

// PhaseName identifies one stage of the engagement.
type PhaseName string

const (
	PhaseRecon    PhaseName = "recon"
	PhaseVulnScan PhaseName = "vulnscan"
	PhaseExploit  PhaseName = "exploit"
	PhaseReport   PhaseName = "report"
)

// AllPhases lists phases in engagement order. The interactive menu numbers them from 1.
var AllPhases = []PhaseName{PhaseRecon, PhaseVulnScan, PhaseExploit, PhaseReport}

// ParsePhaseName accepts a phase name or its menu number.
func ParsePhaseName(s string) (PhaseName, error) {
	for i, p := range AllPhases {
		if s == string(p) || s == fmt.Sprintf("%d", i+1) {
			return p, nil
		}
	}
	if s == "vuln-scan" {
		return PhaseVulnScan, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}
