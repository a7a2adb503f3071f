// internal/conversation/transcript.go
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the append-only log of a single phase run. Insertion order is
// the total order of the conversation; sequence numbers start at 1.
type Transcript struct {
	mu       sync.RWMutex
	runID    uuid.UUID
	messages []Message
	now      func() time.Time
}

// NewTranscript creates an empty transcript for one run.
func NewTranscript() *Transcript {
	return &Transcript{runID: uuid.New(), now: time.Now}
}

// RunID identifies the run the transcript belongs to.
func (t *Transcript) RunID() uuid.UUID { return t.runID }

// Append stores msg and returns it with its sequence number, ID and timestamp set.
func (t *Transcript) Append(msg Message) Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg.Seq = len(t.messages) + 1
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now().UTC()
	}
	if msg.Tool != nil {
		tool := *msg.Tool
		msg.Tool = &tool
	}
	if msg.Exec != nil {
		exec := *msg.Exec
		msg.Exec = &exec
	}
	t.messages = append(t.messages, msg)
	return msg
}

// Messages returns a copy of the log.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages, seed included.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Rounds returns the number of agent turns appended so far.
func (t *Transcript) Rounds() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return CountRounds(t.messages)
}

// Last returns the most recent message.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// CountRounds counts the agent turns in msgs.
func CountRounds(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsTurn() {
			n++
		}
	}
	return n
}

// Render formats the last window messages (all of them when window <= 0) for
// inclusion in a prompt. The seed message is always kept.
func Render(msgs []Message, window int) string {
	var b strings.Builder
	start := 0
	if window > 0 && len(msgs) > window {
		start = len(msgs) - window
		if msgs[0].Intent == IntentSeed {
			writeMessage(&b, msgs[0])
			if start > 1 {
				fmt.Fprintf(&b, "[... %d earlier messages omitted ...]\n\n", start-1)
			}
		}
	}
	for _, m := range msgs[start:] {
		writeMessage(&b, m)
	}
	return b.String()
}

func writeMessage(b *strings.Builder, m Message) {
	fmt.Fprintf(b, "[%d] %s (%s):\n%s\n", m.Seq, m.Sender, m.SenderRole, strings.TrimSpace(m.Content))
	if m.Tool != nil {
		fmt.Fprintf(b, "-> %s result:\n%s\n", m.Tool.Name, strings.TrimSpace(m.Tool.Result))
	}
	b.WriteString("\n")
}
