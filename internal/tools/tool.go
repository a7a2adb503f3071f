// internal/tools/tool.go
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Args are the named string arguments of a tool invocation.
type Args map[string]string

// Param declares one argument a tool accepts.
type Param struct {
	Name        string
	Description string
	Required    bool
	Default     string
}

// Handler performs the tool's work. Failures the calling agent should read are
// reported in the returned text; the error is reserved for invocation problems.
type Handler func(ctx context.Context, args Args) (string, error)

// Tool is a named capability an agent may call during its turn.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Invoke validates args against the declared parameters, fills defaults and
// calls the handler.
func (t Tool) Invoke(ctx context.Context, args Args) (string, error) {
	resolved := make(Args, len(t.Params))
	for _, p := range t.Params {
		v, ok := args[p.Name]
		switch {
		case ok && v != "":
			resolved[p.Name] = v
		case p.Default != "":
			resolved[p.Name] = p.Default
		case p.Required:
			return "", fmt.Errorf("tool %s: missing required argument %q", t.Name, p.Name)
		}
	}
	for name := range args {
		if !t.accepts(name) {
			return "", fmt.Errorf("tool %s: unknown argument %q", t.Name, name)
		}
	}
	return t.Handler(ctx, resolved)
}

func (t Tool) accepts(name string) bool {
	for _, p := range t.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Signature renders the tool for a system prompt, e.g. `read_file(file_name, base_dir="pentest_results")`.
func (t Tool) Signature() string {
	parts := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		if p.Default != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", p.Name, p.Default))
		} else {
			parts = append(parts, p.Name)
		}
	}
	return fmt.Sprintf("%s(%s)", t.Name, strings.Join(parts, ", "))
}

// Table is an agent's capability table. It is built once and never mutated,
// so the set of tools an agent may call is fixed for its lifetime.
type Table struct {
	tools []Tool
	index map[string]int
}

// NewTable builds a capability table. Names must be unique within a table.
func NewTable(tools ...Tool) (*Table, error) {
	t := &Table{tools: make([]Tool, 0, len(tools)), index: make(map[string]int, len(tools))}
	for _, tool := range tools {
		if tool.Name == "" || tool.Handler == nil {
			return nil, fmt.Errorf("tool registration requires a name and a handler")
		}
		if _, dup := t.index[tool.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", tool.Name)
		}
		t.index[tool.Name] = len(t.tools)
		t.tools = append(t.tools, tool)
	}
	return t, nil
}

// Lookup returns the registered tool with the given name.
func (t *Table) Lookup(name string) (Tool, bool) {
	if t == nil {
		return Tool{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return Tool{}, false
	}
	return t.tools[i], true
}

// Has reports whether name is registered.
func (t *Table) Has(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Names returns the registered tool names, sorted.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.tools))
	for _, tool := range t.tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.tools)
}

// Describe lists every tool with its signature and description, in registration order.
func (t *Table) Describe() string {
	if t.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for _, tool := range t.tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Signature(), tool.Description)
	}
	return b.String()
}
