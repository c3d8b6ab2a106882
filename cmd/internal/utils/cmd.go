package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

type CmdExecutor struct {
	log *zap.SugaredLogger
}

func NewExecutor(log *zap.SugaredLogger) *CmdExecutor {
	return &CmdExecutor{
		log: log,
	}
}

// ExecuteCommandWithOutput runs a command and returns its combined output
func (c *CmdExecutor) ExecuteCommandWithOutput(ctx context.Context, command string, env []string, arg ...string) (string, error) {
	commandWithPath, err := exec.LookPath(command)
	if err != nil {
		return fmt.Sprintf("unable to find command:%s in path", command), err
	}
	c.log.Infow("running command", "command", commandWithPath, "args", strings.Join(arg, " "))
	cmd := exec.CommandContext(ctx, commandWithPath, arg...)
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, env...)

	output, err := cmd.CombinedOutput()

	return strings.TrimSpace(string(output)), err
}

// ExecuteCommandToWriter runs a command and streams its stdout into w.
// Stderr is captured and returned as part of the error.
func (c *CmdExecutor) ExecuteCommandToWriter(ctx context.Context, w io.Writer, command string, env []string, arg ...string) error {
	commandWithPath, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("unable to find command:%s in path: %w", command, err)
	}
	c.log.Infow("running command", "command", commandWithPath, "args", strings.Join(arg, " "))

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, commandWithPath, arg...) // nolint:gosec
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, env...)
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}
