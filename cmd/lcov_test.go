package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tessel.dev/pkg/tessel/internal/domain"
	m "tessel.dev/pkg/tessel/internal/model"
)

// unbindLcovFlags points the coverage keys back at unchanged flags so later commands
// see the configured values again.
func unbindLcovFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { configureLcovFlags(&cobra.Command{}) })
}

func TestLcovCmd(t *testing.T) {
	mockWorkflow := withMockWorkflow(t)
	unbindLcovFlags(t)

	cmd := newTestRootCmd(newLcovCmd())

	mockWorkflow.On("Lcov", mock.Anything, domain.LcovArgs{
		Path:         m.Path("coverage.dat"),
		BaseFolder:   m.Path("/src"),
		FallbackRoot: m.Path("/mirror"),
		Kind:         m.CoverageBranch,
	}).Return(nil).Once()

	cmd.SetArgs([]string{"lcov", "--base-folder", "/src", "--fallback-root", "/mirror", "--kind", "branch", "coverage.dat"})
	require.NoError(t, cmd.Execute())
}

func TestLcovCmd_RejectsUnknownKind(t *testing.T) {
	withMockWorkflow(t)
	unbindLcovFlags(t)

	cmd := newTestRootCmd(newLcovCmd())

	cmd.SetArgs([]string{"lcov", "--kind", "function", "coverage.dat"})
	require.Error(t, cmd.Execute())
}
