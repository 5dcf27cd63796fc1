package codec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

var commandContext = exec.CommandContext

// stderrTail is how many trailing stderr lines are kept for error messages.
const stderrTail = 8

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		tail []string
	)
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
	}
	wg.Add(2)
	go scan(stdout, func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	})
	go scan(stderr, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		mu.Unlock()
	})
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(tail) > 0 {
			return fmt.Errorf("%s exited with status %d: %s", binary, exitErr.ExitCode(), strings.Join(tail, " | "))
		}
		return fmt.Errorf("%s: %w", binary, err)
	}
	return nil
}

func executor(e Executor) Executor {
	if e == nil {
		return commandExecutor{}
	}
	return e
}

func binaryOr(binary, fallback string) string {
	if b := strings.TrimSpace(binary); b != "" {
		return b
	}
	return fallback
}
