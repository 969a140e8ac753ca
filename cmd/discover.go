package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"tessel.dev/pkg/tessel/internal/domain"
)

var expandSuitesFlag bool

const discoverLongDescription = `Query the workspace for test targets, reconcile them into the package
tree and print it. Roots default to the discovery.roots setting.

` + targetPatternsHelp

// discoverCmd represents the discover command.
var discoverCmd = newDiscoverCmd()

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [roots...]",
		Short: "Discover test targets and show the target tree",
		Long:  discoverLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := resolveWorkflow(cmd, queryRoots(args))
			if err != nil {
				return err
			}

			return wf.Discover(cmd.Context(), domain.DiscoverArgs{ExpandSuites: expandSuitesFlag})
		},
	}

	configureExpandSuitesFlag(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func configureExpandSuitesFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&expandSuitesFlag, expandSuitesFlagName, false, "list the members of test_suite targets")
}

// queryRoots prefixes bare package paths so they can be used as query roots.
func queryRoots(args []string) []string {
	roots := make([]string, 0, len(args))

	for _, arg := range args {
		root := strings.TrimSpace(arg)
		if root == "" {
			continue
		}

		if !strings.HasPrefix(root, "//") && !strings.HasPrefix(root, "@") {
			root = "//" + strings.TrimPrefix(root, "/")
		}

		roots = append(roots, root)
	}

	return roots
}
