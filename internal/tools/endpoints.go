// internal/tools/endpoints.go
package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

const ExtractEndpointsName = "extract_endpoints"

// Endpoint is a discovered path and the full URL built from it.
type Endpoint struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// ParseEndpoints reads directory scanner output and returns one endpoint per
// line that starts with "/" and carries a "Status:" marker.
func ParseEndpoints(r io.Reader, baseURL string) ([]Endpoint, error) {
	base := strings.TrimRight(baseURL, "/")
	var endpoints []Endpoint

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "/") || !strings.Contains(line, "Status:") {
			continue
		}
		path := strings.Fields(line)[0]
		endpoints = append(endpoints, Endpoint{
			Name: EndpointName(path),
			URL:  base + path,
		})
	}
	if err := scanner.Err(); err != nil {
		return endpoints, fmt.Errorf("failed to scan endpoint list: %w", err)
	}
	return endpoints, nil
}

// EndpointName derives a file-name friendly label from a URL path.
func EndpointName(path string) string {
	name := strings.ReplaceAll(strings.Trim(path, "/"), "/", "-")
	if name == "" {
		return "root"
	}
	return name
}

// ExtractEndpoints parses the scan file at path. A missing file yields no endpoints.
func ExtractEndpoints(path, baseURL string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open scan file: %w", err)
	}
	defer f.Close()
	return ParseEndpoints(f, baseURL)
}

// NewExtractEndpointsTool exposes ExtractEndpoints to agents. The result lists
// one "name url" pair per line.
func NewExtractEndpointsTool(defaultScanFile string) Tool {
	return Tool{
		Name:        ExtractEndpointsName,
		Description: "List endpoints found by the directory scan as name/url pairs.",
		Params: []Param{
			{Name: "scan_file", Description: "gobuster output file", Default: defaultScanFile},
			{Name: "base_url", Description: "target base URL", Required: true},
		},
		Handler: func(_ context.Context, args Args) (string, error) {
			endpoints, err := ExtractEndpoints(args["scan_file"], args["base_url"])
			if err != nil {
				return fmt.Sprintf("Error extracting endpoints: %v", err), nil
			}
			if len(endpoints) == 0 {
				return "No endpoints found.", nil
			}
			var b strings.Builder
			for _, e := range endpoints {
				fmt.Fprintf(&b, "%s %s\n", e.Name, e.URL)
			}
			return b.String(), nil
		},
	}
}
