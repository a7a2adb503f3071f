// internal/approval/console.go
package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrNoTarget is returned when no target could be obtained.
var ErrNoTarget = errors.New("no target provided")

// ConsoleGate asks the operator on a terminal.
type ConsoleGate struct {
	mu       sync.Mutex
	reader   *bufio.Reader
	out      io.Writer
	sentinel string
	// pending is a read abandoned by a cancelled prompt. The next prompt
	// takes its line instead of starting a second read on reader.
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewConsoleGate reads answers from in and writes prompts to out. Typing the
// sentinel (or "exit") at a review prompt ends the phase.
func NewConsoleGate(in io.Reader, out io.Writer, sentinel string) *ConsoleGate {
	return &ConsoleGate{reader: bufio.NewReader(in), out: out, sentinel: sentinel}
}

func (g *ConsoleGate) AskTarget(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		fmt.Fprintf(g.out, "%s: ", prompt)
		line, err := g.readLine(ctx)
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

func (g *ConsoleGate) Review(ctx context.Context, req Request) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fmt.Fprintf(g.out, "\n>>>>>>>> %s (%s) proposes a %s:\n%s\n", req.Agent, req.Role, req.Kind, strings.TrimSpace(req.Content))
	fmt.Fprintf(g.out, "Press enter or 'y' to approve, 'n' or feedback to reject, '%s' to end the phase: ", g.sentinel)
	line, err := g.readLine(ctx)
	if err != nil {
		return Decision{}, err
	}
	return ParseAnswer(line, g.sentinel), nil
}

// ParseAnswer interprets a typed review answer.
func ParseAnswer(line, sentinel string) Decision {
	answer := strings.TrimSpace(line)
	switch strings.ToLower(answer) {
	case "", "y", "yes", "approve", "approved":
		return Decision{Approved: true, Reason: "approved by operator"}
	case "n", "no", "reject":
		return Decision{Reason: "rejected by operator"}
	case "exit", strings.ToLower(sentinel):
		return Decision{Terminate: true, Reason: "operator ended the phase"}
	default:
		return Decision{Reason: answer}
	}
}

// readLine reads one line, giving up when ctx is cancelled. The read itself
// cannot be interrupted, so an abandoned read is kept and resumed by the next
// call. Callers hold g.mu.
func (g *ConsoleGate) readLine(ctx context.Context) (string, error) {
	ch := g.pending
	g.pending = nil
	if ch == nil {
		ch = make(chan lineResult, 1)
		go func() {
			line, err := g.reader.ReadString('\n')
			ch <- lineResult{line, err}
		}()
	}
	select {
	case <-ctx.Done():
		g.pending = ch
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			if errors.Is(r.err, io.EOF) {
				return "", fmt.Errorf("%w: input closed", ErrNoTarget)
			}
			return "", r.err
		}
		return strings.TrimSpace(r.line), nil
	}
}
