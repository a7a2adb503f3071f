package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gated(cmd string) []Message {
	return []Message{
		{Seq: 1, Intent: IntentCommand, Command: cmd},
		{Seq: 2, Intent: IntentVerdict, Command: cmd, Approved: true},
		{Seq: 3, Intent: IntentDecision, Command: cmd, Approved: true},
		{Seq: 4, Intent: IntentExecution, Exec: &ExecutionRecord{Command: cmd}},
	}
}

func TestAuditAcceptsGatedExecutions(t *testing.T) {
	msgs := append(gated("nmap -sV 10.0.0.5"), gated("whatweb 10.0.0.5")...)
	assert.NoError(t, Audit(msgs))
}

func TestAuditRejections(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
	}{
		{
			name: "no verdict",
			msgs: []Message{
				{Seq: 1, Intent: IntentCommand, Command: "ls"},
				{Seq: 2, Intent: IntentDecision, Command: "ls", Approved: true},
				{Seq: 3, Intent: IntentExecution, Exec: &ExecutionRecord{Command: "ls"}},
			},
		},
		{
			name: "rejected verdict",
			msgs: []Message{
				{Seq: 1, Intent: IntentCommand, Command: "ls"},
				{Seq: 2, Intent: IntentVerdict, Command: "ls", Approved: false},
				{Seq: 3, Intent: IntentDecision, Command: "ls", Approved: true},
				{Seq: 4, Intent: IntentExecution, Exec: &ExecutionRecord{Command: "ls"}},
			},
		},
		{
			name: "human rejected",
			msgs: []Message{
				{Seq: 1, Intent: IntentVerdict, Command: "ls", Approved: true},
				{Seq: 2, Intent: IntentDecision, Command: "ls", Approved: false},
				{Seq: 3, Intent: IntentExecution, Exec: &ExecutionRecord{Command: "ls"}},
			},
		},
		{
			name: "different text executed",
			msgs: []Message{
				{Seq: 1, Intent: IntentVerdict, Command: "ls", Approved: true},
				{Seq: 2, Intent: IntentDecision, Command: "ls", Approved: true},
				{Seq: 3, Intent: IntentExecution, Exec: &ExecutionRecord{Command: "rm -rf /"}},
			},
		},
		{
			name: "approval reused twice",
			msgs: append(gated("ls"), Message{Seq: 5, Intent: IntentExecution, Exec: &ExecutionRecord{Command: "ls"}}),
		},
		{
			name: "new candidate invalidates earlier approval",
			msgs: []Message{
				{Seq: 1, Intent: IntentVerdict, Command: "ls", Approved: true},
				{Seq: 2, Intent: IntentDecision, Command: "ls", Approved: true},
				{Seq: 3, Intent: IntentCommand, Command: "ls"},
				{Seq: 4, Intent: IntentExecution, Exec: &ExecutionRecord{Command: "ls"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Audit(tt.msgs)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUngatedExecution)
		})
	}
}

func TestExecutionRecordSucceeded(t *testing.T) {
	var nilRec *ExecutionRecord
	assert.False(t, nilRec.Succeeded())
	assert.True(t, (&ExecutionRecord{}).Succeeded())
	assert.False(t, (&ExecutionRecord{ExitCode: 2}).Succeeded())
	assert.False(t, (&ExecutionRecord{TimedOut: true}).Succeeded())
}
