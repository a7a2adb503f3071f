// internal/conversation/message.go
package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
)

// Intent records which protocol step a message accomplished. The orchestrator
// assigns it when it classifies an agent's output, and the state machine folds
// over intents rather than re-parsing content.
type Intent string

const (
	IntentSeed        Intent = "seed"        // Phase kickoff message. Not an agent turn.
	IntentTarget      Intent = "target"      // Human proxy supplied the engagement target.
	IntentCommand     Intent = "command"     // Generator produced exactly one command block.
	IntentVerdict     Intent = "verdict"     // Validator approved or rejected the candidate.
	IntentDecision    Intent = "decision"    // Human proxy approved or rejected the validated command.
	IntentExecution   Intent = "execution"   // Executor ran the approved command.
	IntentToolCall    Intent = "tool_call"   // An agent invoked one of its registered tools.
	IntentReport      Intent = "report"      // Writer persisted the phase report.
	IntentTermination Intent = "termination" // Sentinel from the human proxy or manager.
	IntentNote        Intent = "note"        // Free text that advances nothing.
	IntentMalformed   Intent = "malformed"   // Output that did not match the expected shape.
)

// ToolInvocation is the record of one adapter call made during a turn.
type ToolInvocation struct {
	Name   string            `json:"name"`
	Args   map[string]string `json:"args,omitempty"`
	Result string            `json:"result"`
	// Failed is set when the adapter reported an error through its result text.
	Failed bool `json:"failed,omitempty"`
}

// ExecutionRecord is the outcome of running an approved command.
type ExecutionRecord struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the command exited cleanly within its timeout.
func (e *ExecutionRecord) Succeeded() bool {
	return e != nil && e.ExitCode == 0 && !e.TimedOut
}

// Message is one entry of the group chat. Messages are immutable once appended.
type Message struct {
	ID         uuid.UUID        `json:"id"`
	Seq        int              `json:"seq"`
	Sender     string           `json:"sender"`
	SenderRole schemas.Role     `json:"sender_role"`
	ChatRole   schemas.ChatRole `json:"chat_role"`
	Content    string           `json:"content"`
	Intent     Intent           `json:"intent"`

	// Command is the command text the message concerns: the generated
	// candidate, the validated command, the decided command or the executed one.
	Command string `json:"command,omitempty"`
	// Approved is the outcome of a verdict or decision.
	Approved bool   `json:"approved,omitempty"`
	Reason   string `json:"reason,omitempty"`

	Tool      *ToolInvocation  `json:"tool,omitempty"`
	Exec      *ExecutionRecord `json:"exec,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// IsTurn reports whether the message counts against the round cap.
func (m Message) IsTurn() bool {
	return m.Intent != IntentSeed
}
