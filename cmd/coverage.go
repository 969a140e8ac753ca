package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tessel.dev/pkg/tessel/internal/domain"
	m "tessel.dev/pkg/tessel/internal/model"
)

// coverageCmd represents the coverage command.
var coverageCmd = newCoverageCmd()

func newCoverageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage [labels...]",
		Short: "Show the coverage history of test targets",
		Long:  "Show the coverage recorded by previous 'run --coverage' invocations, newest last.",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := resolveWorkflow(cmd, nil)
			if err != nil {
				return err
			}

			return wf.Coverage(cmd.Context(), domain.CoverageArgs{
				Labels:  parseSelection(args),
				Reports: m.Path(viper.GetString(outputFlagName)),
			})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}
