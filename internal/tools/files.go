// internal/tools/files.go
package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	ReadFileName   = "read_file"
	SaveReportName = "save_report"

	// DefaultReportName is used when the writer omits a filename.
	DefaultReportName = "recon_report.txt"
)

// ReadFile returns the contents of fileName. Absolute names and names that
// already start with baseDir are used as given; anything else is resolved
// under baseDir. Failures come back as descriptive text, never as a Go error.
func ReadFile(fileName, baseDir string) string {
	path := fileName
	if !filepath.IsAbs(fileName) && !strings.HasPrefix(fileName, baseDir) {
		path = filepath.Join(baseDir, fileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			abs, absErr := filepath.Abs(path)
			if absErr != nil {
				abs = path
			}
			return fmt.Sprintf("File not found: %s", abs)
		}
		return fmt.Sprintf("Error reading file %s: %v", path, err)
	}
	return string(data)
}

// SaveReport writes text to reportsDir under the base name of filename,
// creating the directory when needed.
func SaveReport(text, filename, reportsDir string) string {
	if filename == "" {
		filename = DefaultReportName
	}
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = DefaultReportName
	}

	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return fmt.Sprintf("Error saving report: %v", err)
	}
	path := filepath.Join(reportsDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Sprintf("Error saving report: %v", err)
	}
	return fmt.Sprintf("Report saved to %s", path)
}

// ReportSaved reports whether a save_report result text denotes success and
// returns the saved path.
func ReportSaved(result string) (string, bool) {
	const prefix = "Report saved to "
	if !strings.HasPrefix(result, prefix) {
		return "", false
	}
	return strings.TrimPrefix(result, prefix), true
}

// ReadFileFailed reports whether a read_file result text denotes a failure.
func ReadFileFailed(result string) bool {
	return strings.HasPrefix(result, "File not found: ") || strings.HasPrefix(result, "Error reading file ")
}

// NewReadFileTool registers read_file with baseDir as the default directory.
func NewReadFileTool(baseDir string) Tool {
	return Tool{
		Name:        ReadFileName,
		Description: "Read a scan output or report file. Relative names resolve under base_dir.",
		Params: []Param{
			{Name: "file_name", Description: "file to read", Required: true},
			{Name: "base_dir", Description: "directory relative names resolve against", Default: baseDir},
		},
		Handler: func(_ context.Context, args Args) (string, error) {
			return ReadFile(args["file_name"], args["base_dir"]), nil
		},
	}
}

// NewSaveReportTool registers save_report writing into reportsDir.
func NewSaveReportTool(reportsDir, defaultName string) Tool {
	if defaultName == "" {
		defaultName = DefaultReportName
	}
	return Tool{
		Name:        SaveReportName,
		Description: "Save the final report text. Only the base name of filename is used.",
		Params: []Param{
			{Name: "report_text", Description: "full report body", Required: true},
			{Name: "filename", Description: "report file name", Default: defaultName},
		},
		Handler: func(_ context.Context, args Args) (string, error) {
			return SaveReport(args["report_text"], args["filename"], reportsDir), nil
		},
	}
}
