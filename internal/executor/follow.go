// internal/executor/follow.go
package executor

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// outputFlagRegex finds the file a scanner writes its results to: the
// -o/-oN/-oG/-oX/--output flags and plain shell redirection.
var outputFlagRegex = regexp.MustCompile(`(?:^|\s)(?:-o[NGXA]?\s+|--output[=\s]\s*|>>?\s*)([^\s|;&]+)`)

// OutputTarget returns the output file named in command, if any.
func OutputTarget(command string) string {
	m := outputFlagRegex.FindAllStringSubmatch(command, -1)
	if len(m) == 0 {
		return ""
	}
	target := strings.Trim(m[len(m)-1][1], `"'`)
	if target == "/dev/null" || strings.HasPrefix(target, "&") {
		return ""
	}
	return target
}

func resolvePath(workDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

// followOutput logs lines appended to path until the returned stop function is called.
func (r *Runner) followOutput(path string) func() {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		r.logger.Debug("Output follower unavailable", zap.String("path", path), zap.Error(err))
		return func() {}
	}

	logger := r.logger.Named("follow").With(zap.String("file", filepath.Base(path)))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range t.Lines {
			if line.Err != nil {
				logger.Debug("Follower read error", zap.Error(line.Err))
				continue
			}
			if text := strings.TrimSpace(line.Text); text != "" {
				logger.Debug(text)
			}
		}
	}()

	return func() {
		_ = t.Stop()
		t.Cleanup()
		<-done
	}
}
