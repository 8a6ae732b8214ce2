package shell

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const maxOutputBytes = 8 << 10

// Runner executes operator-defined maintenance commands relayed through the
// signaling channel. Only commands named in the configured allowlist can run;
// request arguments are passed through the environment, never interpolated
// into the command line.
type Runner struct {
	allowed map[string][]string
	log     *zap.SugaredLogger
}

func NewRunner(allowed map[string][]string, log *zap.SugaredLogger) *Runner {
	return &Runner{allowed: allowed, log: log}
}

// Run executes the named allowlisted command and returns its combined output,
// truncated to a sane size. The caller bounds ctx.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (string, error) {
	argv, ok := r.allowed[name]
	if !ok || len(argv) == 0 {
		return "", fmt.Errorf("command %q not allowed", name)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(cmd.Environ(), argEnv(args)...)

	r.log.Infow("running shell command", "name", name, "argv", argv)
	out, err := cmd.CombinedOutput()
	if len(out) > maxOutputBytes {
		out = out[:maxOutputBytes]
	}
	if err != nil {
		return string(out), fmt.Errorf("command %q failed: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// argEnv renders request arguments as CAMGATE_ARG_<KEY> environment entries,
// sorted for deterministic invocations.
func argEnv(args map[string]any) []string {
	env := make([]string, 0, len(args))
	for k, v := range args {
		key := strings.ToUpper(strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				return r
			}
			return '_'
		}, k))
		env = append(env, fmt.Sprintf("CAMGATE_ARG_%s=%v", key, v))
	}
	sort.Strings(env)
	return env
}
