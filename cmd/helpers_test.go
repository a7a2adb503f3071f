// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pentest-crew/internal/observability"
)

// writeTestConfig writes a config file that keeps logs and results inside a
// temporary directory.
func writeTestConfig(t *testing.T, extra string) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	body := fmt.Sprintf(`logger:
  level: error
  log_file: ""
workspace:
  results_dir: %s
  work_dir: %s
%s`, filepath.Join(dir, "pentest_results"), dir, extra)
	path = filepath.Join(dir, "pentest-crew.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dir
}

// executeRoot runs a fresh command tree with args and stdin, returning stdout.
func executeRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String() + errOut.String(), err
}
