package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// CommandPrinter pipes the note snapshot to an external print command (for
// example lp or a vendor CLI). The command's exit status decides the
// outcome; stderr becomes the error message.
type CommandPrinter struct {
	command string
	args    []string
	runner  commandRunner
}

type commandRunner func(ctx context.Context, stdin []byte, command string, args ...string) (stderr string, err error)

func NewCommandPrinter(command string, args ...string) *CommandPrinter {
	return &CommandPrinter{command: command, args: args, runner: runCommand}
}

func (p *CommandPrinter) Print(ctx context.Context, snapshot json.RawMessage) Result {
	stderr, err := p.runner(ctx, snapshot, p.command, p.args...)
	if err != nil {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return Result{OK: false, Message: fmt.Sprintf("%s: %s", p.command, msg)}
	}
	return Result{OK: true}
}

func runCommand(ctx context.Context, stdin []byte, command string, args ...string) (string, error) {
	cmd := commandContext(ctx, command, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}
