// internal/agent/behaviors.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/approval"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/executor"
	"github.com/xkilldash9x/pentest-crew/internal/llmutil"
)

// -- LLM-backed roles --

type llmBehavior struct {
	client schemas.LLMClient
}

func (b llmBehavior) produce(ctx context.Context, a *Agent, turn Turn) (conversation.Message, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: SystemPrompt(a.spec),
		UserPrompt:   UserPrompt(turn),
		Tier:         a.spec.Tier,
	}
	out, err := b.client.Generate(ctx, req)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("generating turn: %w", err)
	}
	a.logger.Debug("LLM turn received", zap.String("content", llmutil.Truncate(out, 200)))

	msg := conversation.Message{Content: out}
	if call, ok := llmutil.ParseToolCall(out); ok {
		msg.Tool = &conversation.ToolInvocation{Name: call.Tool, Args: call.Args}
	}
	return msg, nil
}

// SystemPrompt renders the persona, the agent's identity and its tools.
func SystemPrompt(spec Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your name is %s. You take part in a group chat as the %s.\n\n", spec.Name, spec.Role)
	b.WriteString(strings.TrimSpace(spec.SystemPrompt))
	if spec.Tools.Len() > 0 {
		b.WriteString("\n\nYou may call the following tools:\n")
		b.WriteString(spec.Tools.Describe())
		b.WriteString("To call a tool, reply with a single fenced json block such as:\n")
		b.WriteString("```json\n{\"tool\": \"<name>\", \"args\": {\"<param>\": \"<value>\"}}\n```\n")
	}
	return b.String()
}

// UserPrompt renders the visible transcript followed by the directive.
func UserPrompt(turn Turn) string {
	var b strings.Builder
	if len(turn.Messages) > 0 {
		b.WriteString("Conversation so far:\n\n")
		b.WriteString(conversation.Render(turn.Messages, turn.Window))
	}
	b.WriteString("Your task now:\n")
	b.WriteString(strings.TrimSpace(turn.Directive))
	return b.String()
}

// -- Executor --

type execBehavior struct {
	runner CommandRunner
}

func (b execBehavior) produce(ctx context.Context, a *Agent, turn Turn) (conversation.Message, error) {
	if turn.Expect != ExpectExecution || strings.TrimSpace(turn.Command) == "" {
		return conversation.Message{}, fmt.Errorf("executor has no approved command to run")
	}

	res, err := b.runner.Run(ctx, turn.Command)
	if err != nil && !errors.Is(err, executor.ErrTimeout) {
		return conversation.Message{}, fmt.Errorf("running command: %w", err)
	}
	if !res.TimedOut && res.ExitCode != 0 {
		a.logger.Warn("Command failed", zap.String("command", turn.Command), zap.Int("exit_code", res.ExitCode))
	}

	return conversation.Message{
		ChatRole: schemas.ChatRoleUser,
		Content:  res.Summary(),
		Exec: &conversation.ExecutionRecord{
			Command:  turn.Command,
			ExitCode: res.ExitCode,
			TimedOut: res.TimedOut,
			Duration: res.Duration,
		},
	}, nil
}

// -- Human proxy --

type humanBehavior struct {
	gate     approval.Gate
	sentinel string
}

const targetPrompt = "Enter the target URL or IP address to scan"

func (b humanBehavior) produce(ctx context.Context, _ *Agent, turn Turn) (conversation.Message, error) {
	msg := conversation.Message{ChatRole: schemas.ChatRoleUser}

	switch turn.Expect {
	case ExpectTarget:
		target, err := b.gate.AskTarget(ctx, targetPrompt)
		if err != nil {
			return msg, fmt.Errorf("asking for target: %w", err)
		}
		if strings.EqualFold(target, "exit") {
			target = b.sentinel
		}
		msg.Content = strings.TrimSpace(target)

	case ExpectDecision:
		req := approval.Request{Kind: approval.KindCommand, Content: turn.Command}
		if turn.Review != nil {
			req = *turn.Review
		}
		d, err := b.gate.Review(ctx, req)
		if err != nil {
			return msg, fmt.Errorf("reviewing %s: %w", req.Kind, err)
		}
		msg.Command = turn.Command
		msg.Approved = d.Approved && !d.Terminate
		msg.Reason = d.Reason
		switch {
		case d.Terminate:
			msg.Content = fmt.Sprintf("%s\n%s", d.Reason, b.sentinel)
		case d.Approved:
			msg.Content = "APPROVED: " + d.Reason
		default:
			msg.Content = "REJECTED: " + d.Reason
		}

	case ExpectTermination:
		msg.Content = b.sentinel

	default:
		return msg, fmt.Errorf("human proxy cannot produce a %s turn", turn.Expect)
	}
	return msg, nil
}

// -- Manager --

type managerBehavior struct {
	sentinel string
}

func (b managerBehavior) produce(_ context.Context, _ *Agent, turn Turn) (conversation.Message, error) {
	if turn.Expect != ExpectTermination {
		return conversation.Message{}, fmt.Errorf("manager only concludes the phase, asked for %s", turn.Expect)
	}
	content := b.sentinel
	if d := strings.TrimSpace(turn.Directive); d != "" {
		content = d + "\n" + b.sentinel
	}
	return conversation.Message{Content: content}, nil
}
