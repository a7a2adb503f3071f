// internal/orchestrator/state.go
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/conversation"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

// Stage is the protocol step the phase is waiting on.
type Stage int

const (
	StageAwaitTarget Stage = iota
	StagePreamble
	StageInspect
	StageGenerate
	StageValidate
	StageApprove
	StageExecute
	StageRead
	StageReport
	StageConclude
	StageTerminated
)

var stageNames = [...]string{
	"awaiting_target", "preamble", "inspect", "awaiting_command", "awaiting_validation",
	"awaiting_approval", "awaiting_execution", "read", "awaiting_report", "conclude", "terminated",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// State is derived by replaying the transcript. It is never stored.
type State struct {
	Stage  Stage
	Target string
	// Step indexes the preamble; Plan indexes the tool plans.
	Step int
	Plan int

	Candidate string // generated command awaiting validation
	Validated string // validated command awaiting approval and execution
	Failures  int    // failed executions of the current plan

	// Feedback is the reason the current step has to be redone.
	Feedback string
	// Malformed counts consecutive malformed turns on the current step.
	Malformed  int
	ReportPath string
	Rounds     int
}

// Replay folds msgs over the policy's transition function.
func Replay(p Policy, msgs []conversation.Message) State {
	s := State{Target: p.Target}
	if s.Target == "" {
		s.Stage = StageAwaitTarget
	} else {
		s.enterPreamble(p)
	}
	for _, m := range msgs {
		s.apply(p, m)
	}
	return s
}

func (s *State) enterPreamble(p Policy) {
	s.Step = 0
	if len(p.Preamble) > 0 {
		s.Stage = StagePreamble
		return
	}
	s.enterPlan(p, 0)
}

func (s *State) enterPlan(p Policy, i int) {
	s.Plan, s.Failures = i, 0
	s.Candidate, s.Validated = "", ""
	switch {
	case i >= len(p.Plans) && p.Report != nil:
		s.Stage = StageReport
	case i >= len(p.Plans):
		s.Stage = StageConclude
	case p.Plans[i].Inspect != nil:
		s.Stage = StageInspect
	default:
		s.Stage = StageGenerate
	}
}

func (s *State) advanced() {
	s.Feedback, s.Malformed = "", 0
}

func (s *State) apply(p Policy, m conversation.Message) {
	if m.IsTurn() {
		s.Rounds++
	}
	if s.Stage == StageTerminated {
		return
	}

	switch m.Intent {
	case conversation.IntentTermination:
		s.Stage = StageTerminated

	case conversation.IntentMalformed:
		s.Malformed++
		s.Feedback = m.Reason

	case conversation.IntentTarget:
		if s.Stage == StageAwaitTarget {
			s.Target = m.Content
			s.advanced()
			s.enterPreamble(p)
		}

	case conversation.IntentToolCall:
		switch s.Stage {
		case StagePreamble:
			s.advanced()
			s.Step++
			if s.Step >= len(p.Preamble) {
				s.enterPlan(p, 0)
			}
		case StageInspect:
			s.advanced()
			s.Stage = StageGenerate
		case StageRead:
			s.advanced()
			s.enterPlan(p, s.Plan+1)
		}

	case conversation.IntentCommand:
		if s.Stage == StageGenerate {
			s.advanced()
			s.Candidate = m.Command
			s.Stage = StageValidate
		}

	case conversation.IntentVerdict:
		if s.Stage != StageValidate {
			return
		}
		s.Malformed = 0
		if m.Approved {
			s.Feedback = ""
			s.Validated = m.Command
			s.Stage = StageApprove
			return
		}
		s.Feedback = fmt.Sprintf("%s rejected the command: %s", m.Sender, m.Reason)
		s.Candidate = ""
		s.Stage = StageGenerate

	case conversation.IntentDecision:
		if m.Approved {
			if s.Stage == StageApprove && m.Command == s.Validated {
				s.advanced()
				s.Stage = StageExecute
			}
			return
		}
		s.Malformed = 0
		s.Feedback = fmt.Sprintf("the operator rejected it: %s", m.Reason)
		switch s.Stage {
		case StageGenerate, StageValidate, StageApprove, StageExecute:
			s.Candidate, s.Validated = "", ""
			s.Stage = StageGenerate
		}

	case conversation.IntentExecution:
		if s.Stage != StageExecute {
			return
		}
		s.advanced()
		s.Validated = ""
		if !m.Exec.Succeeded() && s.Failures < p.MaxRetries {
			s.Failures++
			s.Feedback = fmt.Sprintf("the previous command failed (%s)", strings.SplitN(m.Content, "\n", 2)[0])
			s.Stage = StageGenerate
			return
		}
		if p.Plans[s.Plan].Read != nil {
			s.Stage = StageRead
			return
		}
		s.enterPlan(p, s.Plan+1)

	case conversation.IntentReport:
		if s.Stage == StageReport {
			s.advanced()
			if m.Tool != nil {
				s.ReportPath, _ = tools.ReportSaved(m.Tool.Result)
			}
			s.Stage = StageConclude
		}
	}
}

// Assignment names the next speaker and what it must produce.
type Assignment struct {
	Speaker   string
	Expect    agent.Expectation
	Tool      string
	Command   string
	Directive string
	// Subject is the agent whose output the human proxy is deciding on.
	Subject string
}

// Next returns the next assignment. ok is false once the phase is terminated.
func (s State) Next(p Policy) (a Assignment, ok bool) {
	switch s.Stage {
	case StageAwaitTarget:
		a = Assignment{
			Speaker:   p.HumanProxy,
			Expect:    agent.ExpectTarget,
			Directive: fmt.Sprintf("Provide the target URL or IP address for the %s phase.", p.Phase),
		}
	case StagePreamble:
		step := p.Preamble[s.Step]
		a = callAssignment(step)
	case StageInspect:
		a = callAssignment(*p.Plans[s.Plan].Inspect)
	case StageRead:
		a = callAssignment(*p.Plans[s.Plan].Read)
	case StageGenerate:
		plan := p.Plans[s.Plan]
		a = Assignment{
			Speaker: plan.Generator,
			Expect:  agent.ExpectCommand,
			Directive: fmt.Sprintf("Generate the %s command for target %s.\n%s\nThe command must write its results to %s.\n"+
				"Reply with exactly one fenced bash block containing a single command.", plan.Name, TargetPlaceholder, plan.Directive, plan.OutputFile),
		}
	case StageValidate:
		plan := p.Plans[s.Plan]
		a = Assignment{
			Speaker: plan.Validator,
			Expect:  agent.ExpectVerdict,
			Command: s.Candidate,
			Directive: fmt.Sprintf("Check this %s command from %s for syntax, flags and output redirection to %s:\n```bash\n%s\n```\n"+
				"If it is correct, or after you fix it, reply with the final command in exactly one fenced bash block.\n"+
				"If %s must rewrite it, reply with a first line starting with REJECTED: followed by the reason.",
				plan.Name, plan.Generator, plan.OutputFile, s.Candidate, plan.Generator),
		}
	case StageApprove:
		plan := p.Plans[s.Plan]
		a = Assignment{
			Speaker:   p.HumanProxy,
			Expect:    agent.ExpectDecision,
			Command:   s.Validated,
			Subject:   plan.Validator,
			Directive: fmt.Sprintf("Approve or reject the validated %s command.", plan.Name),
		}
	case StageExecute:
		plan := p.Plans[s.Plan]
		a = Assignment{
			Speaker:   plan.Executor,
			Expect:    agent.ExpectExecution,
			Command:   s.Validated,
			Directive: fmt.Sprintf("Run the approved %s command.", plan.Name),
		}
	case StageReport:
		filename := p.Report.Filename
		if filename == "" {
			filename = tools.DefaultReportName
		}
		a = Assignment{
			Speaker: p.Report.Writer,
			Expect:  agent.ExpectReport,
			Tool:    tools.SaveReportName,
			Directive: fmt.Sprintf("%s\nThe first line of the report must be the target %s.\n"+
				"Write the report, then call %s with filename %q. report_text may be omitted to save the text outside the json block.",
				p.Report.Directive, TargetPlaceholder, tools.SaveReportName, filename),
		}
	case StageConclude:
		summary := fmt.Sprintf("All %s steps are complete.", p.Phase)
		if s.ReportPath != "" {
			summary += " Report saved to " + s.ReportPath + "."
		}
		a = Assignment{Speaker: p.concluder(), Expect: agent.ExpectTermination, Directive: summary}
	default:
		return Assignment{}, false
	}

	a.Directive = expand(a.Directive, s.Target)
	if s.Feedback != "" && s.Stage != StageConclude {
		a.Directive += "\nYour previous attempt was not accepted: " + s.Feedback
	}
	return a, true
}

func callAssignment(step CallStep) Assignment {
	return Assignment{
		Speaker:   step.Agent,
		Expect:    agent.ExpectToolCall,
		Tool:      step.Tool,
		Directive: fmt.Sprintf("%s\nCall the %s tool.", step.Directive, step.Tool),
	}
}
