// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// fencedBlockRegex matches every fenced block, capturing the language tag and the body.
	fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60([a-zA-Z0-9_+-]*)[ \\t]*\\r?\\n(.*?)\x60\x60\x60")
)

// shellLanguages are the fence tags accepted as a command block. An untagged fence counts too.
var shellLanguages = map[string]bool{"": true, "bash": true, "sh": true, "shell": true, "zsh": true, "console": true}

// ParseJSONResponse attempts to parse an LLM response string into a target Go type using generics.
// It handles common LLM formatting issues, such as wrapping the JSON in markdown code blocks.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	jsonStringToParse := response

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			jsonStringToParse = matches[1]
		}
	} else if (isObject || isArray) && (!strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[")) {
		// Look for the structure inside conversational text.
		first, last := -1, -1
		if isObject {
			fb := strings.Index(response, "{")
			lb := strings.LastIndex(response, "}")
			if fb != -1 && lb > fb {
				first, last = fb, lb+1
			}
		}
		if first == -1 && isArray {
			fb := strings.Index(response, "[")
			lb := strings.LastIndex(response, "]")
			if fb != -1 && lb > fb {
				first, last = fb, lb+1
			}
		}
		if first != -1 {
			jsonStringToParse = response[first:last]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStringToParse), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(jsonStringToParse, 500))
	}
	return &result, nil
}

// ExtractCommandBlocks returns the bodies of every shell fenced block in content,
// trimmed, in order of appearance. Empty blocks and blocks tagged with a
// non-shell language (json, python, ...) are skipped.
func ExtractCommandBlocks(content string) []string {
	var blocks []string
	for _, m := range fencedBlockRegex.FindAllStringSubmatch(content, -1) {
		if !shellLanguages[strings.ToLower(m[1])] {
			continue
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		blocks = append(blocks, body)
	}
	return blocks
}

// ToolCall is a tool invocation request written by an agent as a JSON object:
//
//	{"tool": "read_file", "args": {"file_name": "recon/nmap_scan.txt"}}
type ToolCall struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"-"`
}

type rawToolCall struct {
	Tool string                 `json:"tool"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ParseToolCall looks for a tool invocation in content. A fenced json block is
// preferred; otherwise the message itself must be the JSON object. Argument
// values are converted to strings.
func ParseToolCall(content string) (ToolCall, bool) {
	candidates := make([]string, 0, 2)
	for _, m := range fencedBlockRegex.FindAllStringSubmatch(content, -1) {
		if strings.EqualFold(m[1], "json") {
			candidates = append(candidates, m[2])
		}
	}
	if trimmed := strings.TrimSpace(content); strings.HasPrefix(trimmed, "{") {
		candidates = append(candidates, trimmed)
	}

	for _, c := range candidates {
		raw, err := ParseJSONResponse[rawToolCall](c)
		if err != nil {
			continue
		}
		name := raw.Tool
		if name == "" {
			name = raw.Name
		}
		if name == "" {
			continue
		}
		call := ToolCall{Tool: name, Args: make(map[string]string, len(raw.Args))}
		for k, v := range raw.Args {
			switch val := v.(type) {
			case string:
				call.Args[k] = val
			case nil:
			default:
				call.Args[k] = fmt.Sprint(val)
			}
		}
		return call, true
	}
	return ToolCall{}, false
}

// StripFencedBlocks removes every fenced block from content and trims the rest.
func StripFencedBlocks(content string) string {
	return strings.TrimSpace(fencedBlockRegex.ReplaceAllString(content, ""))
}

// ContainsSentinel reports whether content carries the termination sentinel.
func ContainsSentinel(content, sentinel string) bool {
	return sentinel != "" && strings.Contains(content, sentinel)
}

// FirstLine returns the first non-blank line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

// ReportTarget returns the target named by a report heading: the first
// non-blank line with markdown decoration and an optional "Target:" label
// removed.
func ReportTarget(report string) string {
	for _, line := range strings.Split(report, "\n") {
		l := strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "#*`"))
		if l == "" {
			continue
		}
		if label, rest, ok := strings.Cut(l, ":"); ok && strings.EqualFold(strings.TrimSpace(label), "target") {
			l = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "*`"))
		}
		return l
	}
	return ""
}

// Truncate shortens s to maxLen bytes for logging.
func Truncate(s string, maxLen int) string {
	return truncateString(s, maxLen)
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
