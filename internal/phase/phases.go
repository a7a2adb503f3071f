// internal/phase/phases.go
package phase

import (
	"errors"
	"fmt"
	"os"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/agent"
	"github.com/xkilldash9x/pentest-crew/internal/llmutil"
	"github.com/xkilldash9x/pentest-crew/internal/orchestrator"
	"github.com/xkilldash9x/pentest-crew/internal/results"
	"github.com/xkilldash9x/pentest-crew/internal/tools"
)

const (
	reconSeed = "I need you to perform reconnaissance on a web target. " +
		"Please ask me what URL or IP address I want to scan, then follow your recon workflow."
	vulnScanSeed = "Reconnaissance is complete. Use its output to run vulnerability scanners accordingly."
	exploitSeed  = "Vulnerability scanning is complete. Test the discovered forms for SQL injection against {target}."
	reportSeed   = "All phases are complete. Compile the final penetration test report for {target}."

	// Upper bound on scanner output pasted into a seed message.
	maxSeedOutput = 16000
)

func (b *blueprint) headerStep() orchestrator.CallStep {
	return orchestrator.CallStep{
		Agent:     FileReader,
		Tool:      tools.ReadFileName,
		Directive: fmt.Sprintf("Read %s to get the session cookie.", b.env.headerFile()),
	}
}

// -- Recon --

func (b *blueprint) recon() error {
	const checker, manager = "Code-Checker", "Recon-Manager"
	cfg := b.env.Config.Phases().Recon
	l := b.env.Layout
	b.policy(schemas.PhaseRecon, reconSeed, cfg.RoundCap, manager)

	b.addUserProxy()
	if err := b.addReader(); err != nil {
		return err
	}
	b.addGenerator("Nmap-Agent", nmapPrompt)
	b.addValidator(checker)
	b.addExecutor()
	b.addGenerator("WhatWeb-Agent", whatwebPrompt)
	b.addGenerator("Directory-Scanner", gobusterPrompt)
	if cfg.Crawl {
		b.addGenerator("Endpoint-Crawler", hakrawlerPrompt)
	}
	if err := b.addWriter(reconWriterPrompt, results.ReconReportName,
		"Summarize the reconnaissance findings from every scan, grouped by tool."); err != nil {
		return err
	}
	b.add(agent.Spec{
		Name:         "Recon-Summarizer",
		Role:         schemas.RoleWriter,
		Activation:   schemas.ActivationNeverSpeaks,
		SystemPrompt: reconSummarizerPrompt,
	})
	b.addManager(manager)

	scan := func(tool, generator, directive string) orchestrator.ToolPlan {
		out := l.ReconFile(tool)
		return orchestrator.ToolPlan{
			Name:       tool,
			Generator:  generator,
			Validator:  checker,
			Executor:   CodeExecutor,
			OutputFile: out,
			Directive:  directive,
			Read:       readStep(out, tool),
		}
	}
	p := &b.bp.Policy
	p.Preamble = []orchestrator.CallStep{b.headerStep()}
	p.Plans = []orchestrator.ToolPlan{
		scan("nmap", "Nmap-Agent", "Discover open ports, services and OS details."),
		scan("whatweb", "WhatWeb-Agent", "Identify the web technologies in use."),
		scan("gobuster", "Directory-Scanner", "Brute-force directories and files, using the cookie if one was found."),
	}
	if cfg.Crawl {
		p.Plans = append(p.Plans, scan("hakrawler", "Endpoint-Crawler", "Crawl endpoints and parameters with depth 2 or more."))
	}
	return nil
}

// -- Vulnerability scan --

func (b *blueprint) vulnScan() error {
	const scanner, checker, manager = "Nuclei-Scanner", "Command-Checker", "Vuln-Manager"
	cfg := b.env.Config.Phases().VulnScan
	l := b.env.Layout
	gobuster := l.ReconFile("gobuster")

	b.policy(schemas.PhaseVulnScan, vulnScanSeed+scanOutput(gobuster, "Gobuster"), cfg.RoundCap, manager)
	b.addUserProxy()
	b.addGenerator(scanner, nucleiPrompt)
	b.addValidator(checker)
	b.addExecutor()
	if err := b.addReader(tools.NewExtractEndpointsTool(gobuster)); err != nil {
		return err
	}
	if err := b.addWriter(vulnWriterPrompt, results.VulnScanReportName,
		"Summarize the vulnerability scan results for every endpoint."); err != nil {
		return err
	}
	b.addManager(manager)

	endpoints, err := b.endpoints(cfg.MaxEndpoints)
	if err != nil {
		return err
	}
	p := &b.bp.Policy
	p.Preamble = []orchestrator.CallStep{{
		Agent: FileReader,
		Tool:  tools.ExtractEndpointsName,
		Directive: fmt.Sprintf("List the endpoints the directory scan found (scan_file %s, base_url %s).",
			gobuster, orchestrator.TargetPlaceholder),
	}}
	for _, e := range endpoints {
		out := l.NucleiFile(e.Name)
		p.Plans = append(p.Plans, orchestrator.ToolPlan{
			Name:       "nuclei-" + e.Name,
			Generator:  scanner,
			Validator:  checker,
			Executor:   CodeExecutor,
			OutputFile: out,
			Directive:  fmt.Sprintf("Scan %s: nuclei -u %s -o %s", e.URL, e.URL, out),
			Read:       readStep(out, "nuclei "+e.Name),
		})
	}
	return nil
}

// scanOutput formats a previous phase's scan file for a seed message.
func scanOutput(path, tool string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("\n\nNo %s output was found at %s.", tool, path)
	}
	return fmt.Sprintf("\n\nHere is the %s output:\n\n```\n%s\n```", tool, llmutil.Truncate(string(data), maxSeedOutput))
}

// -- Exploitation --

var errNoCapturer = errors.New("exploit phase requires a URL capturer")

func (b *blueprint) exploit() error {
	const analyzer, sqlmap, checker, manager = "Web-Form-Analyzer", "SQLMap-Agent", "Command-Checker", "Exploit-Manager"
	if b.env.Capturer == nil {
		return errNoCapturer
	}
	cfg := b.env.Config.Phases().Exploit
	l := b.env.Layout

	b.policy(schemas.PhaseExploit, exploitSeed, cfg.RoundCap, manager)
	b.addUserProxy()
	analyzerTools, err := tools.NewTable(tools.NewAnalyzeAndCaptureURLTool(b.env.Capturer))
	if err != nil {
		return err
	}
	b.add(agent.Spec{Name: analyzer, Role: schemas.RoleReader, SystemPrompt: formAnalyzerPrompt, Tools: analyzerTools})
	b.addGenerator(sqlmap, sqlmapPrompt)
	b.addValidator(checker)
	b.addExecutor()
	if err := b.addReader(); err != nil {
		return err
	}
	if err := b.addWriter(exploitWriterPrompt, results.ExploitReportName,
		"Summarize the exploitation results for every tested endpoint."); err != nil {
		return err
	}
	b.addManager(manager)

	endpoints, err := b.endpoints(cfg.MaxEndpoints)
	if err != nil {
		return err
	}
	p := &b.bp.Policy
	p.Preamble = []orchestrator.CallStep{
		b.headerStep(),
		{
			Agent:     FileReader,
			Tool:      tools.ReadFileName,
			Directive: fmt.Sprintf("Read %s and list the endpoints worth testing.", l.Report(results.VulnScanReportName)),
		},
	}
	for _, e := range endpoints {
		out := l.ExploitFile("sqli", e.Name)
		p.Plans = append(p.Plans, orchestrator.ToolPlan{
			Name:      "sqlmap-" + e.Name,
			Generator: sqlmap,
			Validator: checker,
			Executor:  CodeExecutor,
			Inspect: &orchestrator.CallStep{
				Agent:     analyzer,
				Tool:      tools.AnalyzeAndCaptureURLName,
				Directive: fmt.Sprintf("Analyze the form at %s and capture the URL it submits to.", e.URL),
			},
			OutputFile: out,
			Directive: fmt.Sprintf("Test the URL captured for %s with sqlmap, or %s itself when nothing was captured. "+
				"Use --batch and the session cookie.", e.URL, e.URL),
			Read: readStep(out, "sqlmap "+e.Name),
		})
	}
	return nil
}

// -- Final report --

func (b *blueprint) report() error {
	const manager = "Report-Manager"
	cfg := b.env.Config.Phases().Report
	l := b.env.Layout

	b.policy(schemas.PhaseReport, reportSeed, cfg.RoundCap, manager)
	b.addUserProxy()
	if err := b.addReader(); err != nil {
		return err
	}
	if err := b.addWriter(finalWriterPrompt, results.FinalReportName,
		"Write the final penetration test report from the phase reports."); err != nil {
		return err
	}
	b.addManager(manager)

	for _, name := range []string{results.ReconReportName, results.VulnScanReportName, results.ExploitReportName} {
		b.bp.Policy.Preamble = append(b.bp.Policy.Preamble, orchestrator.CallStep{
			Agent:     FileReader,
			Tool:      tools.ReadFileName,
			Directive: fmt.Sprintf("Read %s and summarize it.", l.Report(name)),
		})
	}
	return nil
}
