package approval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
	}{
		{"", Decision{Approved: true, Reason: "approved by operator"}},
		{"Y", Decision{Approved: true, Reason: "approved by operator"}},
		{"n", Decision{Reason: "rejected by operator"}},
		{"use -T4 instead", Decision{Reason: "use -T4 instead"}},
		{"TERMINATE", Decision{Terminate: true, Reason: "operator ended the phase"}},
		{"exit", Decision{Terminate: true, Reason: "operator ended the phase"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAnswer(tt.in, "TERMINATE"), tt.in)
	}
}

func TestConsoleGate(t *testing.T) {
	in := strings.NewReader("\nhttp://10.0.0.5\nadd -p- please\n")
	var out bytes.Buffer
	g := NewConsoleGate(in, &out, "TERMINATE")

	target, err := g.AskTarget(context.Background(), "Enter the target URL")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5", target, "blank answers are asked again")

	d, err := g.Review(context.Background(), Request{Agent: "Code-Checker", Role: schemas.RoleValidator, Kind: KindCommand, Content: "nmap 10.0.0.5"})
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, "add -p- please", d.Reason)
	assert.Contains(t, out.String(), "Code-Checker (validator) proposes a command:\nnmap 10.0.0.5")
}

func TestConsoleGateClosedInput(t *testing.T) {
	g := NewConsoleGate(strings.NewReader(""), io.Discard, "TERMINATE")
	_, err := g.AskTarget(context.Background(), "target")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestConsoleGateLastLineWithoutNewline(t *testing.T) {
	g := NewConsoleGate(strings.NewReader("y"), io.Discard, "TERMINATE")
	d, err := g.Review(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, d.Approved)
}

func TestConsoleGateCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	g := NewConsoleGate(pr, io.Discard, "TERMINATE")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.Review(ctx, Request{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConsoleGateResumesAbandonedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	g := NewConsoleGate(pr, io.Discard, "TERMINATE")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Review(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)

	go func() {
		_, _ = pw.Write([]byte("n\n"))
		_, _ = pw.Write([]byte("y\n"))
	}()

	first, err := g.Review(context.Background(), Request{})
	require.NoError(t, err)
	assert.False(t, first.Approved, "the line answers the prompt that follows the cancelled one")

	second, err := g.Review(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, second.Approved)
}

func TestAutoGate(t *testing.T) {
	d, err := AutoGate{}.Review(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, d.Approved)

	_, err = AutoGate{}.AskTarget(context.Background(), "target")
	assert.ErrorIs(t, err, ErrNoTarget)

	target, err := AutoGate{Target: "http://x"}.AskTarget(context.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, "http://x", target)
}
