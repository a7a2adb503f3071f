package conversation

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
)

func TestTranscriptAppendAssignsOrder(t *testing.T) {
	tr := NewTranscript()
	require.NotEqual(t, uuid.Nil, tr.RunID())

	seed := tr.Append(Message{Sender: "Recon-Manager", SenderRole: schemas.RoleManager, Intent: IntentSeed, Content: "start"})
	turn := tr.Append(Message{Sender: "User-Proxy", SenderRole: schemas.RoleHumanProxy, Intent: IntentTarget, Content: "http://10.0.0.5"})

	assert.Equal(t, 1, seed.Seq)
	assert.Equal(t, 2, turn.Seq)
	assert.NotEqual(t, uuid.Nil, turn.ID)
	assert.False(t, turn.CreatedAt.IsZero())
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, 1, tr.Rounds(), "the seed is not an agent turn")

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "User-Proxy", last.Sender)
}

func TestTranscriptMessagesAreCopies(t *testing.T) {
	tr := NewTranscript()
	rec := &ExecutionRecord{Command: "nmap 10.0.0.5", ExitCode: 0}
	tr.Append(Message{Sender: "Code-Executor", Intent: IntentExecution, Exec: rec})

	rec.ExitCode = 1
	msgs := tr.Messages()
	msgs[0].Content = "mutated"

	fresh := tr.Messages()
	assert.Equal(t, 0, fresh[0].Exec.ExitCode, "appended records are detached from the caller")
	assert.Empty(t, fresh[0].Content)
}

func TestTranscriptConcurrentReaders(t *testing.T) {
	tr := NewTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Messages()
			_ = tr.Rounds()
		}()
	}
	for i := 0; i < 20; i++ {
		tr.Append(Message{Sender: "a", Intent: IntentNote})
	}
	wg.Wait()
	assert.Equal(t, 20, tr.Rounds())
}

func TestRenderWindowKeepsSeed(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Message{Sender: "Manager", Intent: IntentSeed, Content: "kickoff"})
	for i := 0; i < 5; i++ {
		tr.Append(Message{Sender: "Nmap-Agent", Intent: IntentNote, Content: "turn"})
	}

	out := Render(tr.Messages(), 2)
	assert.True(t, strings.HasPrefix(out, "[1] Manager"))
	assert.Contains(t, out, "3 earlier messages omitted")
	assert.Contains(t, out, "[5] Nmap-Agent")
	assert.Contains(t, out, "[6] Nmap-Agent")
	assert.NotContains(t, out, "[4] Nmap-Agent")

	full := Render(tr.Messages(), 0)
	assert.Contains(t, full, "[4] Nmap-Agent")
}

func TestRenderIncludesToolResults(t *testing.T) {
	msgs := []Message{{
		Seq: 1, Sender: "File-Reader", SenderRole: schemas.RoleReader, Intent: IntentToolCall,
		Tool: &ToolInvocation{Name: "read_file", Result: "PORT 80 open"},
	}}
	out := Render(msgs, 0)
	assert.Contains(t, out, "-> read_file result:\nPORT 80 open")
}
