package healing

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Operation is one fallible unit of work. Callers bind arguments via
// closure before constructing it; Run receives only a context. The loop
// borrows the operation for a single Execute call and does not retain it.
type Operation struct {
	Name       string
	Run        func(ctx context.Context) error
	MaxRetries int // 0 means use the loop default
}

// NewOperation wraps a callable as an Operation with the loop's default
// retry budget.
func NewOperation(name string, run func(ctx context.Context) error) Operation {
	return Operation{Name: name, Run: run}
}

// ShellOperation wraps a command invocation. A non-zero exit is the
// failure, with the command's combined stdout and stderr folded into the
// error text so the classifier can see phrases like "connection refused"
// or "npm ERR!" wherever the tool printed them.
func ShellOperation(name string, argv []string) Operation {
	command := make([]string, len(argv))
	copy(command, argv)

	return Operation{
		Name: name,
		Run: func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, command[0], command[1:]...)
			out, err := cmd.CombinedOutput()
			if err == nil {
				return nil
			}

			text := strings.TrimSpace(string(out))
			if text == "" {
				return fmt.Errorf("%s: %w", name, err)
			}
			return fmt.Errorf("%s: %w: %s", name, err, text)
		},
	}
}
