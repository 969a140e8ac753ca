package cmd

import (
	"github.com/spf13/cobra"

	"tessel.dev/pkg/tessel/internal/domain"
	m "tessel.dev/pkg/tessel/internal/model"
)

var reportTargetFlag string

// reportCmd represents the report command.
var reportCmd = newReportCmd()

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <test.xml>",
		Short: "Show the test cases of a structured XML report",
		Long:  "Parse a JUnit-style XML report and print every test case with its status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := resolveWorkflow(cmd, nil)
			if err != nil {
				return err
			}

			return wf.Report(cmd.Context(), domain.ReportArgs{
				Path:   m.Path(args[0]),
				Target: reportTargetFlag,
			})
		},
	}

	cmd.Flags().StringVarP(&reportTargetFlag, "target", "t", "", "label the report belongs to")

	return cmd
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
