// internal/tools/capture.go
package tools

import (
	"context"
	"fmt"
)

const AnalyzeAndCaptureURLName = "analyze_and_capture_url"

// URLCapturer submits the first form on a page and reports where it landed.
type URLCapturer interface {
	AnalyzeAndCapture(ctx context.Context, baseURL string) (string, error)
}

// NewAnalyzeAndCaptureURLTool exposes a URLCapturer to agents. The result is
// the captured URL, or a description of why nothing was captured.
func NewAnalyzeAndCaptureURLTool(c URLCapturer) Tool {
	return Tool{
		Name:        AnalyzeAndCaptureURLName,
		Description: "Open the URL in a browser, fill and submit its first form, and return the resulting URL.",
		Params: []Param{
			{Name: "base_url", Description: "page to analyze", Required: true},
		},
		Handler: func(ctx context.Context, args Args) (string, error) {
			final, err := c.AnalyzeAndCapture(ctx, args["base_url"])
			if err != nil {
				return fmt.Sprintf("Error analyzing %s: %v", args["base_url"], err), nil
			}
			return final, nil
		},
	}
}
