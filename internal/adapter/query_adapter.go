package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	m "tessel.dev/pkg/tessel/internal/model"
)

const (
	// OutputLabelKind prints "<kind> rule <label>" per line.
	OutputLabelKind = "label_kind"
	// OutputLabel prints one label per line.
	OutputLabel = "label"
	// OutputXML prints the matched rules with their attributes as XML.
	OutputXML = "xml"

	// partialResultsExitCode is returned by the build tool when --keep_going produced partial results.
	partialResultsExitCode = 3
)

// QueryAdapter abstracts the build graph query capability.
type QueryAdapter interface {
	// Query evaluates expression in the workspace and returns the raw newline-delimited output.
	Query(ctx context.Context, workspace m.Path, expression, output string) (string, error)
}

// LocalQueryAdapter runs '<binary> query' with os/exec.
type LocalQueryAdapter struct {
	binary string
}

// NewLocalQueryAdapter constructs a LocalQueryAdapter for the given binary.
func NewLocalQueryAdapter(binary string) *LocalQueryAdapter {
	return &LocalQueryAdapter{binary: binary}
}

// Query runs the query and returns its standard output.
func (a *LocalQueryAdapter) Query(ctx context.Context, workspace m.Path, expression, output string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binary, "query", "--output="+output, "--keep_going", expression)
	cmd.Dir = string(workspace)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	exitErr := &exec.ExitError{}
	if errors.As(err, &exitErr) && exitErr.ExitCode() == partialResultsExitCode && stdout.Len() > 0 {
		slog.Warn("Query returned partial results", "expression", expression, "stderr", strings.TrimSpace(stderr.String()))
		return stdout.String(), nil
	}

	return stdout.String(), fmt.Errorf("%s query %q: %w: %s", a.binary, expression, err, strings.TrimSpace(stderr.String()))
}
