package adapter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	m "tessel.dev/pkg/tessel/internal/model"
)

// Stream identifies which output stream a line came from.
type Stream string

const (
	// Stdout is the standard output stream.
	Stdout Stream = "stdout"
	// Stderr is the standard error stream.
	Stderr Stream = "stderr"
)

const (
	testCommand     = "test"
	coverageCommand = "coverage"

	maxLineBytes = 4 * 1024 * 1024
)

// LineFunc receives every complete output line as soon as it is read.
type LineFunc func(stream Stream, line string)

// TestRequest describes one invocation of the external test tool.
type TestRequest struct {
	Workspace m.Path
	Label     string
	Args      []string
	Coverage  bool
}

// TestRunnerAdapter abstracts launching the external test tool for a single target.
type TestRunnerAdapter interface {
	// RunTest launches the tool and blocks until it exits. Output is streamed line by line
	// to onLine and also returned in full. Launch failures are reported in
	// ProcessResult.LaunchError, never as a nonzero exit code.
	RunTest(ctx context.Context, req TestRequest, onLine LineFunc) m.ProcessResult
}

// LocalTestRunnerAdapter runs the build tool binary with os/exec.
type LocalTestRunnerAdapter struct {
	binary  string
	envFile string
}

// NewLocalTestRunnerAdapter constructs a LocalTestRunnerAdapter for the given binary.
// envFile is an optional dotenv file whose variables are added to the tool's environment.
func NewLocalTestRunnerAdapter(binary, envFile string) *LocalTestRunnerAdapter {
	return &LocalTestRunnerAdapter{
		binary:  binary,
		envFile: envFile,
	}
}

// RunTest runs '<binary> test|coverage <args> -- <label>' in the workspace.
func (a *LocalTestRunnerAdapter) RunTest(ctx context.Context, req TestRequest, onLine LineFunc) m.ProcessResult {
	command := testCommand
	if req.Coverage {
		command = coverageCommand
	}

	args := make([]string, 0, len(req.Args)+3)
	args = append(args, command)
	args = append(args, req.Args...)
	args = append(args, "--", req.Label)

	cmd := exec.CommandContext(ctx, a.binary, args...)
	cmd.Dir = string(req.Workspace)
	cmd.Env = a.environment()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return m.ProcessResult{LaunchError: err}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return m.ProcessResult{LaunchError: err}
	}

	start := time.Now()

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to launch test tool", "binary", a.binary, "label", req.Label, "error", err)
		return m.ProcessResult{LaunchError: err}
	}

	var (
		mu       sync.Mutex
		combined strings.Builder
		wg       sync.WaitGroup
	)

	consume := func(stream Stream, reader io.Reader) {
		defer wg.Done()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		for scanner.Scan() {
			line := scanner.Text()

			mu.Lock()
			combined.WriteString(line)
			combined.WriteByte('\n')
			mu.Unlock()

			if onLine != nil {
				onLine(stream, line)
			}
		}

		if err := scanner.Err(); err != nil {
			slog.Warn("Failed to read test tool output", "label", req.Label, "stream", stream, "error", err)

			// The process blocks on a full pipe until the rest is read.
			_, _ = io.Copy(io.Discard, reader)
		}
	}

	wg.Add(2)

	go consume(Stdout, stdout)
	go consume(Stderr, stderr)

	wg.Wait()

	waitErr := cmd.Wait()

	result := m.ProcessResult{
		CombinedOutput: combined.String(),
		Duration:       time.Since(start),
	}

	if waitErr != nil {
		exitErr := &exec.ExitError{}
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			slog.Warn("Test tool did not exit cleanly", "label", req.Label, "error", waitErr)
			result.ExitCode = -1
		}
	}

	return result
}

func (a *LocalTestRunnerAdapter) environment() []string {
	env := os.Environ()
	if a.envFile == "" {
		return env
	}

	values, err := godotenv.Read(a.envFile)
	if err != nil {
		slog.Warn("Failed to read env file, continuing without it", "path", a.envFile, "error", err)
		return env
	}

	for key, value := range values {
		env = append(env, key+"="+value)
	}

	return env
}
