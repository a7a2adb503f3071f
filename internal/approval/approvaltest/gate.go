// Package approvaltest provides a scripted approval gate for tests.
package approvaltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/pentest-crew/internal/approval"
)

// Gate replays canned answers. Review requests beyond the script are
// approved. It records every request it saw.
type Gate struct {
	mu        sync.Mutex
	Target    string
	Decisions []approval.Decision
	Seen      []approval.Request
}

var _ approval.Gate = (*Gate)(nil)

func (g *Gate) AskTarget(context.Context, string) (string, error) {
	if g.Target == "" {
		return "", fmt.Errorf("%w: script has no target", approval.ErrNoTarget)
	}
	return g.Target, nil
}

func (g *Gate) Review(_ context.Context, req approval.Request) (approval.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Seen = append(g.Seen, req)
	if len(g.Decisions) == 0 {
		return approval.Decision{Approved: true, Reason: "approved"}, nil
	}
	d := g.Decisions[0]
	g.Decisions = g.Decisions[1:]
	return d, nil
}

// Requests returns a copy of the requests seen so far.
func (g *Gate) Requests() []approval.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]approval.Request, len(g.Seen))
	copy(out, g.Seen)
	return out
}
