package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tessel.dev/pkg/tessel/internal/adapter"
	adaptermocks "tessel.dev/pkg/tessel/internal/adapter/mocks"
	"tessel.dev/pkg/tessel/internal/controller"
	"tessel.dev/pkg/tessel/internal/domain"
	domainmocks "tessel.dev/pkg/tessel/internal/domain/mocks"
	m "tessel.dev/pkg/tessel/internal/model"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"empty", []string{}, []string{}},
		{"all targets", []string{"//pkg:a_test", "//..."}, nil},
		{"label", []string{"//pkg:a_test"}, []string{"//pkg:a_test"}},
		{"bare package", []string{"pkg/calc"}, []string{"//pkg/calc"}},
		{"recursive package", []string{"//pkg/..."}, []string{"//pkg"}},
		{"external repo", []string{"@dep//x:x_test"}, []string{"@dep//x:x_test"}},
		{
			"multiple",
			[]string{"//a:one_test", "b:two_test"},
			[]string{"//a:one_test", "//b:two_test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSelection(tt.args))
		})
	}
}

func TestQueryRoots(t *testing.T) {
	assert.Equal(t, []string{"//pkg/...", "//app:all", "@dep//..."}, queryRoots([]string{"pkg/...", "//app:all", " ", "@dep//..."}))
	assert.Empty(t, queryRoots(nil))
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "tessel", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.Equal(t, rootLongDescription, cmd.Long)

	for _, name := range []string{workspaceFlagName, bazelFlagName, outputFlagName, envFileFlagName, excludeFlagName, verboseFlagName} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	cmd := newRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{})
	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, output.String(), "Usage:")
	assert.Contains(t, output.String(), "Targets are addressed by label")
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	for _, name := range []string{"discover", "run", "watch", "coverage", "report", "lcov", "init", "version"} {
		found, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestResolveWorkflow_UsesInstalledWorkflow(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	wf, err := resolveWorkflow(newRootCmd(), nil)
	require.NoError(t, err)
	assert.Same(t, mockWorkflow, wf)
}

func TestExecuteRoot_WorkflowFailureIsShownOnce(t *testing.T) {
	query := adaptermocks.NewMockQueryAdapter(t)
	query.On("Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("bazel exploded"))

	cmd := newRootCmd()
	cmd.AddCommand(newDiscoverCmd())

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)

	workspace := m.Path(t.TempDir())

	originalWorkflow := workflow
	workflow = domain.NewWorkflow(domain.WorkflowDeps{
		Workspace:  workspace,
		Store:      adapter.NewMemoryNodeStore(),
		UI:         controller.NewSimpleUI(cmd),
		Discovery:  domain.NewTargetDiscoveryCache(query, domain.DiscoveryConfig{Workspace: workspace, Roots: []string{"//..."}}),
		Reconciler: domain.NewTreeReconciler(adapter.NewLocalSourceFSAdapter(), workspace),
	})
	t.Cleanup(func() { workflow = originalWorkflow })

	cmd.SetArgs([]string{"discover"})
	err := executeRoot(context.Background(), cmd)

	require.Error(t, err)
	assert.True(t, domain.IsReported(err))
	assert.Equal(t, 1, strings.Count(out.String(), "bazel exploded"), out.String())
	assert.NotContains(t, out.String(), "Error:")
}

func TestExecuteRoot_PrintsUnreportedError(t *testing.T) {
	withMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newReportCmd())

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)

	cmd.SetArgs([]string{"report"})
	err := executeRoot(context.Background(), cmd)

	require.Error(t, err)
	assert.False(t, domain.IsReported(err))
	assert.Equal(t, 1, strings.Count(out.String(), "Error: "), out.String())
}

func TestExecute_WithError(t *testing.T) {
	originalRootCmd := rootCmd
	defer func() {
		rootCmd = originalRootCmd
	}()

	mockCmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("command failed")
		},
	}
	mockCmd.SetOut(&bytes.Buffer{})
	mockCmd.SetErr(&bytes.Buffer{})

	rootCmd = mockCmd

	// os.Exit(1) cannot be intercepted here; the process-level test covers it.
	err := rootCmd.Execute()
	require.Error(t, err)
}

func TestExecute_ProcessLevel_Success(t *testing.T) {
	if os.Getenv("TEST_EXECUTE_SUBPROCESS") == "1" {
		originalRootCmd := rootCmd
		mockCmd := &cobra.Command{
			Use: "test",
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Println("success")
				return nil
			},
		}
		mockCmd.SetOut(os.Stdout)
		mockCmd.SetErr(os.Stderr)
		mockCmd.SetArgs([]string{})
		rootCmd = mockCmd
		defer func() { rootCmd = originalRootCmd }()

		Execute()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestExecute_ProcessLevel_Success")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_SUBPROCESS=1")
	output, err := cmd.CombinedOutput()

	require.NoError(t, err, "output: %s", output)
	assert.Contains(t, string(output), "success")
}

func TestExecute_ProcessLevel_Failure(t *testing.T) {
	if os.Getenv("TEST_EXECUTE_SUBPROCESS_FAIL") == "1" {
		originalRootCmd := rootCmd
		mockCmd := &cobra.Command{
			Use: "test",
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(os.Stderr, "error occurred")
				return fmt.Errorf("command failed")
			},
		}
		mockCmd.SetOut(os.Stdout)
		mockCmd.SetErr(os.Stderr)
		mockCmd.SetArgs([]string{})
		rootCmd = mockCmd
		defer func() { rootCmd = originalRootCmd }()

		Execute() // exits with status 1
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestExecute_ProcessLevel_Failure")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_SUBPROCESS_FAIL=1")
	output, err := cmd.CombinedOutput()

	require.Error(t, err)

	if exitErr, ok := err.(*exec.ExitError); ok {
		assert.Equal(t, 1, exitErr.ExitCode())
	} else {
		assert.Fail(t, "expected exec.ExitError", "got %T", err)
	}

	assert.Contains(t, string(output), "error occurred")
}
