// internal/orchestrator/classify.go
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/llmutil"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

var (
	rejectedPrefix = regexp.MustCompile(`(?i)^\W*rejected\b[\s:*_-]*`)
	targetPrefix   = regexp.MustCompile(`(?i)^\W*target\s*:\s*`)
)

func malformed(msg conversation.Message, format string, args ...interface{}) conversation.Message {
	msg.Intent = conversation.IntentMalformed
	msg.Reason = fmt.Sprintf(format, args...)
	return msg
}

// classify assigns the intent of a produced message. Only the human proxy
// and the manager can end a phase with the sentinel.
func (o *Orchestrator) classify(speaker agent.Participant, as Assignment, s State, msg conversation.Message) conversation.Message {
	role := speaker.Role()
	if (role == schemas.RoleHumanProxy || role == schemas.RoleManager) && llmutil.ContainsSentinel(msg.Content, o.policy.Sentinel) {
		msg.Intent = conversation.IntentTermination
		return msg
	}

	switch as.Expect {
	case agent.ExpectTarget:
		target := targetPrefix.ReplaceAllString(llmutil.FirstLine(msg.Content), "")
		if target == "" {
			return malformed(msg, "expected a target URL or IP address")
		}
		msg.Content = target
		msg.Intent = conversation.IntentTarget

	case agent.ExpectCommand:
		blocks := llmutil.ExtractCommandBlocks(msg.Content)
		if len(blocks) != 1 {
			return malformed(msg, "expected exactly one fenced command block, got %d", len(blocks))
		}
		msg.Intent = conversation.IntentCommand
		msg.Command = blocks[0]

	case agent.ExpectVerdict:
		first := llmutil.FirstLine(msg.Content)
		if loc := rejectedPrefix.FindStringIndex(first); loc != nil {
			reason := strings.TrimSpace(first[loc[1]:])
			if reason == "" {
				reason = llmutil.FirstLine(llmutil.StripFencedBlocks(strings.TrimSpace(msg.Content)[len(first):]))
			}
			if reason == "" {
				reason = "no reason given"
			}
			msg.Intent = conversation.IntentVerdict
			msg.Command = as.Command
			msg.Reason = reason
			return msg
		}
		blocks := llmutil.ExtractCommandBlocks(msg.Content)
		if len(blocks) != 1 {
			return malformed(msg, "expected REJECTED: <reason> or exactly one fenced command block, got %d blocks", len(blocks))
		}
		msg.Intent = conversation.IntentVerdict
		msg.Approved = true
		msg.Command = blocks[0]

	case agent.ExpectDecision:
		msg.Intent = conversation.IntentDecision
		msg.Command = as.Command

	case agent.ExpectExecution:
		if msg.Exec == nil || msg.Exec.Command != as.Command {
			return malformed(msg, "execution record does not match the approved command")
		}
		msg.Intent = conversation.IntentExecution
		msg.Command = as.Command

	case agent.ExpectToolCall:
		if reason := checkToolCall(speaker, as.Tool, msg); reason != "" {
			return malformed(msg, "%s", reason)
		}
		msg.Intent = conversation.IntentToolCall

	case agent.ExpectReport:
		if reason := checkToolCall(speaker, as.Tool, msg); reason != "" {
			return malformed(msg, "%s", reason)
		}
		tool := *msg.Tool
		tool.Args = copyArgs(tool.Args)
		if strings.TrimSpace(tool.Args["report_text"]) == "" {
			tool.Args["report_text"] = llmutil.StripFencedBlocks(msg.Content)
		}
		if o.policy.Report != nil && o.policy.Report.Filename != "" && tool.Args["filename"] == "" {
			tool.Args["filename"] = o.policy.Report.Filename
		}
		if strings.TrimSpace(tool.Args["report_text"]) == "" {
			return malformed(msg, "the report is empty")
		}
		if s.Target != "" && llmutil.ReportTarget(tool.Args["report_text"]) != s.Target {
			return malformed(msg, "the first line of the report must be the target %s", s.Target)
		}
		msg.Tool = &tool
		msg.Intent = conversation.IntentReport

	case agent.ExpectTermination:
		return malformed(msg, "expected the termination sentinel %s", o.policy.Sentinel)
	}
	return msg
}

// checkToolCall enforces agent-scoped authorization and the step's expected tool.
func checkToolCall(speaker agent.Participant, want string, msg conversation.Message) string {
	if msg.Tool == nil {
		return fmt.Sprintf("expected a call to %s", want)
	}
	if !speaker.Tools().Has(msg.Tool.Name) {
		return fmt.Sprintf("tool %s is not registered for %s", msg.Tool.Name, speaker.Name())
	}
	if msg.Tool.Name != want {
		return fmt.Sprintf("expected a call to %s, got %s", want, msg.Tool.Name)
	}
	return ""
}

func copyArgs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// invoke runs the tool named by a classified tool call or report from the
// speaker's own capability table.
func (o *Orchestrator) invoke(ctx context.Context, speaker agent.Participant, msg conversation.Message) conversation.Message {
	t, ok := speaker.Tools().Lookup(msg.Tool.Name)
	if !ok {
		return malformed(msg, "tool %s is not registered for %s", msg.Tool.Name, speaker.Name())
	}
	tool := *msg.Tool
	result, err := t.Invoke(ctx, tools.Args(tool.Args))
	if err != nil {
		tool.Failed = true
		tool.Result = err.Error()
		msg.Tool = &tool
		return malformed(msg, "%v", err)
	}
	tool.Result = result
	msg.Tool = &tool

	switch msg.Intent {
	case conversation.IntentReport:
		if _, saved := tools.ReportSaved(result); !saved {
			msg.Tool.Failed = true
			return malformed(msg, "%s", result)
		}
	case conversation.IntentToolCall:
		msg.Tool.Failed = tools.ReadFileFailed(result)
	}
	return msg
}
