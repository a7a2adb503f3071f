//go:build !windows

package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pentest-crew/internal/config"
)

func newTestRunner(t *testing.T, cfg config.ExecutorConfig) (*Runner, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	return NewRunner(cfg, t.TempDir(), zap.New(core)), logs
}

func TestRunSuccess(t *testing.T) {
	r, _ := newTestRunner(t, config.ExecutorConfig{Timeout: 10 * time.Second})

	res, err := r.Run(context.Background(), "echo hello; echo oops 1>&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Output, "hello")
	assert.Contains(t, res.Output, "oops", "stderr is captured too")
	assert.True(t, strings.HasPrefix(res.Summary(), "exitcode: 0 (execution succeeded)"))
}

func TestRunUsesWorkDir(t *testing.T) {
	r, _ := newTestRunner(t, config.ExecutorConfig{Timeout: 10 * time.Second})

	_, err := r.Run(context.Background(), "mkdir -p pentest_results/recon && echo scan > pentest_results/recon/nmap_scan.txt")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(r.WorkDir(), "pentest_results", "recon", "nmap_scan.txt"))
	require.NoError(t, err)
	assert.Equal(t, "scan\n", string(data))
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r, _ := newTestRunner(t, config.ExecutorConfig{Timeout: 10 * time.Second})

	res, err := r.Run(context.Background(), "echo nope; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Summary(), "exitcode: 3 (execution failed)")
	assert.Contains(t, res.Summary(), "Code output: nope")
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	defer goleak.VerifyNone(t)
	r, logs := newTestRunner(t, config.ExecutorConfig{Timeout: 300 * time.Millisecond})

	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 30 & sleep 30; echo never")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second, "children must not keep the command alive")
	assert.NotContains(t, res.Output, "never")
	assert.Contains(t, res.Summary(), "timed out")
	assert.Equal(t, 1, logs.FilterMessage("Command timed out").Len())
}

func TestRunCancelled(t *testing.T) {
	r, _ := newTestRunner(t, config.ExecutorConfig{Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res, err := r.Run(ctx, "sleep 30")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.TimedOut, "cancellation is not a timeout")
}

func TestRunTruncatesOutput(t *testing.T) {
	r, _ := newTestRunner(t, config.ExecutorConfig{Timeout: 10 * time.Second, MaxOutputBytes: 16})

	res, err := r.Run(context.Background(), "printf '0123456789abcdefghijklmnop'")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", res.Output)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Summary(), "[output truncated]")
}

func TestRunFollowsRedirectedOutput(t *testing.T) {
	r, logs := newTestRunner(t, config.ExecutorConfig{Timeout: 20 * time.Second, FollowOutput: true})

	_, err := r.Run(context.Background(), "for i in 1 2 3; do echo progress$i >> scan.txt; sleep 0.4; done")
	require.NoError(t, err)
	assert.Positive(t, logs.FilterMessage("progress1").Len()+logs.FilterMessage("progress2").Len())
}

func TestOutputTarget(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"nmap -sV -oN pentest_results/recon/nmap_scan.txt 10.0.0.5", "pentest_results/recon/nmap_scan.txt"},
		{"gobuster dir -u http://x -w common.txt -o pentest_results/recon/gobuster_scan.txt", "pentest_results/recon/gobuster_scan.txt"},
		{"whatweb http://x > pentest_results/recon/whatweb_scan.txt 2>&1", "pentest_results/recon/whatweb_scan.txt"},
		{"nuclei -u http://x --output=out.txt", "out.txt"},
		{"curl -s http://x > /dev/null", ""},
		{"nmap -sV 10.0.0.5", ""},
		{"sqlmap -u http://x --batch -order", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputTarget(tt.command), tt.command)
	}
}

func TestCappedBufferUnlimited(t *testing.T) {
	b := newCappedBuffer(0)
	_, _ = b.Write([]byte("abc"))
	assert.Equal(t, "abc", b.String())
	assert.False(t, b.Truncated())
}
