package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/approval/approvaltest"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/executor"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

const testTarget = "http://10.0.0.5"

// scriptedLLM replays canned completions and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	requests []schemas.GenerationRequest
}

func script(replies ...string) *scriptedLLM { return &scriptedLLM{replies: replies} }

func (s *scriptedLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *scriptedLLM) Close() error { return nil }

func (s *scriptedLLM) prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.UserPrompt)
	}
	return out
}

// recordingRunner pretends to run commands and returns exit codes in order.
type recordingRunner struct {
	mu    sync.Mutex
	codes []int
	ran   []string
}

func (r *recordingRunner) Run(_ context.Context, command string) (executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, command)
	code := 0
	if len(r.codes) > 0 {
		code, r.codes = r.codes[0], r.codes[1:]
	}
	return executor.Result{Command: command, ExitCode: code, Output: "scan output"}, nil
}

func (r *recordingRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

// crew is a small recon-like roster wired to scripts.
type crew struct {
	dir     string
	gate    *approvaltest.Gate
	runner  *recordingRunner
	llm     map[string]*scriptedLLM
	writer  schemas.Activation
	roster  []agent.Participant
	logs    *observer.ObservedLogs
	logger  *zap.Logger
	reports string
}

func newCrew(t *testing.T, scripts map[string]*scriptedLLM, gate *approvaltest.Gate, writer schemas.Activation) *crew {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	c := &crew{
		dir:    t.TempDir(),
		gate:   gate,
		runner: &recordingRunner{},
		llm:    scripts,
		writer: writer,
		logs:   logs,
		logger: zap.New(core),
	}
	c.reports = filepath.Join(c.dir, "reports")

	readerTools, err := tools.NewTable(tools.NewReadFileTool(c.dir))
	require.NoError(t, err)
	writerTools, err := tools.NewTable(tools.NewSaveReportTool(c.reports, "recon_report.txt"))
	require.NoError(t, err)

	llmFor := func(name string) schemas.LLMClient {
		if s, ok := scripts[name]; ok {
			return s
		}
		s := script()
		scripts[name] = s
		return s
	}
	specs := []struct {
		spec agent.Spec
		deps agent.Deps
	}{
		{agent.Spec{Name: "User-Proxy", Role: schemas.RoleHumanProxy}, agent.Deps{Gate: gate, Sentinel: "TERMINATE"}},
		{agent.Spec{Name: "File-Reader", Role: schemas.RoleReader, Tools: readerTools}, agent.Deps{LLM: llmFor("File-Reader")}},
		{agent.Spec{Name: "Nmap-Agent", Role: schemas.RoleGenerator}, agent.Deps{LLM: llmFor("Nmap-Agent")}},
		{agent.Spec{Name: "WhatWeb-Agent", Role: schemas.RoleGenerator}, agent.Deps{LLM: llmFor("WhatWeb-Agent")}},
		{agent.Spec{Name: "Code-Checker", Role: schemas.RoleValidator}, agent.Deps{LLM: llmFor("Code-Checker")}},
		{agent.Spec{Name: "Code-Executor", Role: schemas.RoleExecutor}, agent.Deps{Runner: c.runner}},
		{agent.Spec{Name: "Report-Writer", Role: schemas.RoleWriter, Activation: writer, Tools: writerTools}, agent.Deps{LLM: llmFor("Report-Writer")}},
		{agent.Spec{Name: "Recon-Summarizer", Role: schemas.RoleWriter, Activation: schemas.ActivationNeverSpeaks}, agent.Deps{LLM: llmFor("Recon-Summarizer")}},
		{agent.Spec{Name: "Recon-Manager", Role: schemas.RoleManager}, agent.Deps{Sentinel: "TERMINATE"}},
	}
	for _, s := range specs {
		a, err := agent.New(s.spec, s.deps)
		require.NoError(t, err)
		c.roster = append(c.roster, a)
	}
	return c
}

func (c *crew) policy() Policy {
	return Policy{
		Phase:      schemas.PhaseRecon,
		Seed:       "I need you to perform reconnaissance on a web target.",
		Sentinel:   "TERMINATE",
		RoundCap:   50,
		Window:     30,
		HumanProxy: "User-Proxy",
		Manager:    "Recon-Manager",
		Preamble: []CallStep{
			{Agent: "File-Reader", Tool: tools.ReadFileName, Directive: "Read header.txt to get the cookie."},
		},
		Plans: []ToolPlan{
			{Name: "nmap", Generator: "Nmap-Agent", Validator: "Code-Checker", Executor: "Code-Executor", OutputFile: "recon/nmap_scan.txt"},
			{
				Name: "whatweb", Generator: "WhatWeb-Agent", Validator: "Code-Checker", Executor: "Code-Executor", OutputFile: "recon/whatweb_scan.txt",
				Read: &CallStep{Agent: "File-Reader", Tool: tools.ReadFileName, Directive: "Read the whatweb output."},
			},
		},
		Report: &ReportStep{Writer: "Report-Writer", Filename: "recon_report.txt", Directive: "Summarize the recon findings."},
	}
}

func (c *crew) run(t *testing.T, p Policy) (Outcome, *conversation.Transcript, error) {
	t.Helper()
	o, err := New(p, c.roster, c.logger)
	require.NoError(t, err)
	tr := conversation.NewTranscript()
	out, err := o.Run(context.Background(), tr)
	return out, tr, err
}

func intents(msgs []conversation.Message) []conversation.Intent {
	out := make([]conversation.Intent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Intent)
	}
	return out
}

func senders(msgs []conversation.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sender)
	}
	return out
}

const (
	readHeader  = "```json\n{\"tool\": \"read_file\", \"args\": {\"file_name\": \"header.txt\"}}\n```"
	readWhatweb = "```json\n{\"tool\": \"read_file\", \"args\": {\"file_name\": \"recon/whatweb_scan.txt\"}}\n```"
	nmapCmd     = "nmap -sV -p- 10.0.0.5 -oN recon/nmap_scan.txt"
	whatwebCmd  = "whatweb http://10.0.0.5 | tee recon/whatweb_scan.txt"
	saveReport  = "http://10.0.0.5\n- 22/tcp ssh\n- 80/tcp Apache\n```json\n{\"tool\": \"save_report\", \"args\": {\"filename\": \"recon_report.txt\"}}\n```"
)

func bash(cmd string) string { return "```bash\n" + cmd + "\n```" }
