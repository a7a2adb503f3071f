// internal/conversation/audit.go
package conversation

import (
	"errors"
	"fmt"
)

// ErrUngatedExecution is returned by Audit when a command ran without the
// validation and approval that must precede it.
var ErrUngatedExecution = errors.New("command executed without validation and approval")

// Audit checks that every execution in msgs ran exactly the command that an
// approving verdict and a following approving decision named, with no other
// verdict, decision or execution in between.
func Audit(msgs []Message) error {
	var (
		validated  string
		verdictOK  bool
		decisionOK bool
	)
	for _, m := range msgs {
		switch m.Intent {
		case IntentCommand:
			verdictOK, decisionOK = false, false
		case IntentVerdict:
			verdictOK, decisionOK = m.Approved, false
			validated = m.Command
		case IntentDecision:
			decisionOK = verdictOK && m.Approved && m.Command == validated
			if !m.Approved {
				verdictOK = false
			}
		case IntentExecution:
			if m.Exec == nil {
				return fmt.Errorf("%w: message %d has no execution record", ErrUngatedExecution, m.Seq)
			}
			if !verdictOK || !decisionOK || m.Exec.Command != validated {
				return fmt.Errorf("%w: message %d ran %q", ErrUngatedExecution, m.Seq, m.Exec.Command)
			}
			verdictOK, decisionOK = false, false
		}
	}
	return nil
}
