// internal/results/layout.go
package results

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xkilldash9x/pentest-crew/internal/llmutil"
)

const (
	ReconDir       = "recon"
	VulnScanDir    = "vulnscan"
	ExploitDir     = "exploit"
	ReportsDir     = "reports"
	TranscriptsDir = "transcripts"

	ReconReportName    = "recon_report.txt"
	VulnScanReportName = "vulnscan_report.txt"
	ExploitReportName  = "exploit_report.txt"
	FinalReportName    = "final_report.txt"
)

// Layout locates scan outputs, reports and transcript exports under one root.
// Phases share data only through these files.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) Recon() string       { return filepath.Join(l.Root, ReconDir) }
func (l Layout) VulnScan() string    { return filepath.Join(l.Root, VulnScanDir) }
func (l Layout) Exploit() string     { return filepath.Join(l.Root, ExploitDir) }
func (l Layout) Reports() string     { return filepath.Join(l.Root, ReportsDir) }
func (l Layout) Transcripts() string { return filepath.Join(l.Root, TranscriptsDir) }

// ReconFile is the output path of a recon scanner, e.g. nmap_scan.txt.
func (l Layout) ReconFile(tool string) string {
	return filepath.Join(l.Recon(), tool+"_scan.txt")
}

// NucleiFile is the vulnerability scan output for one endpoint.
func (l Layout) NucleiFile(endpoint string) string {
	return filepath.Join(l.VulnScan(), "nuclei_"+endpoint+".txt")
}

// ExploitFile is the exploitation output for one vulnerability class and endpoint.
func (l Layout) ExploitFile(kind, endpoint string) string {
	return filepath.Join(l.Exploit(), fmt.Sprintf("exploit_%s_%s.txt", kind, endpoint))
}

// Report is the path of a saved report.
func (l Layout) Report(name string) string {
	return filepath.Join(l.Reports(), name)
}

// EnsureDirectories creates the root and every phase directory.
func (l Layout) EnsureDirectories() error {
	for _, dir := range []string{l.Root, l.Recon(), l.VulnScan(), l.Exploit(), l.Reports(), l.Transcripts()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create results directory %s: %w", dir, err)
		}
	}
	return nil
}

// ReconTarget returns the target named by the first line of the recon report.
// It returns "" when the report does not exist.
func (l Layout) ReconTarget() (string, error) {
	data, err := os.ReadFile(l.Report(ReconReportName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read recon report: %w", err)
	}
	return llmutil.ReportTarget(string(data)), nil
}
