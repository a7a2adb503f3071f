package approvaltest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pentest-crew/internal/approval"
)

func TestGate(t *testing.T) {
	g := &Gate{Target: "http://x", Decisions: []approval.Decision{{Reason: "no"}}}
	d, err := g.Review(context.Background(), approval.Request{Agent: "a"})
	require.NoError(t, err)
	assert.False(t, d.Approved)
	d, _ = g.Review(context.Background(), approval.Request{Agent: "b"})
	assert.True(t, d.Approved)
	assert.Len(t, g.Requests(), 2)

	target, err := g.AskTarget(context.Background(), "target?")
	require.NoError(t, err)
	assert.Equal(t, "http://x", target)
}

func TestGate_NoTarget(t *testing.T) {
	_, err := (&Gate{}).AskTarget(context.Background(), "target?")
	assert.True(t, errors.Is(err, approval.ErrNoTarget))
}
