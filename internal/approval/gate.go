// internal/approval/gate.go
package approval

import (
	"context"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
)

// Kind names what is being reviewed.
type Kind string

const (
	KindCommand Kind = "command" // A validated command awaiting execution.
	KindReport  Kind = "report"  // A report the writer is about to save.
	KindMessage Kind = "message" // Any other turn of a confirm-each-turn agent.
)

// Request describes one turn put in front of the operator.
type Request struct {
	Agent   string
	Role    schemas.Role
	Kind    Kind
	Content string
}

// Decision is the operator's answer to a Request.
type Decision struct {
	Approved bool
	// Reason is fed back to the agent whose output was rejected.
	Reason string
	// Terminate asks the orchestrator to end the phase now.
	Terminate bool
}

// Gate is the human decision point of the workflow.
type Gate interface {
	// AskTarget obtains the engagement target.
	AskTarget(ctx context.Context, prompt string) (string, error)
	// Review approves or rejects a proposed turn.
	Review(ctx context.Context, req Request) (Decision, error)
}

// AutoGate approves everything and answers the target question from configuration.
type AutoGate struct {
	Target string
}

func (g AutoGate) AskTarget(context.Context, string) (string, error) {
	if g.Target == "" {
		return "", ErrNoTarget
	}
	return g.Target, nil
}

func (g AutoGate) Review(context.Context, Request) (Decision, error) {
	return Decision{Approved: true, Reason: "auto-approved"}, nil
}
