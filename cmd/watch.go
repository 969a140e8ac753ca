package cmd

import (
	"github.com/spf13/cobra"

	"tessel.dev/pkg/tessel/internal/domain"
)

// watchCmd represents the watch command.
var watchCmd = newWatchCmd()

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "Re-discover test targets whenever BUILD files change",
		Long: `Discover test targets, then watch BUILD and BUILD.bazel files under the
workspace and refresh the target tree after every change. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := resolveWorkflow(cmd, queryRoots(args))
			if err != nil {
				return err
			}

			return wf.Watch(cmd.Context(), domain.WatchArgs{
				DiscoverArgs: domain.DiscoverArgs{ExpandSuites: expandSuitesFlag},
			})
		},
	}

	configureExpandSuitesFlag(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
