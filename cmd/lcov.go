package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tessel.dev/pkg/tessel/internal/domain"
	m "tessel.dev/pkg/tessel/internal/model"
)

var lcovBaseFolderFlag string
var lcovFallbackRootFlag string
var lcovKindFlag string

const (
	baseFolderFlagName   = "base-folder"
	fallbackRootFlagName = "fallback-root"
	kindFlagName         = "kind"
)

// lcovCmd represents the lcov command.
var lcovCmd = newLcovCmd()

func newLcovCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lcov <coverage.dat>",
		Short: "Show per-file coverage of an LCOV report",
		Long: `Parse an LCOV report and print covered and total counts per source file.
Relative source paths resolve against --base-folder (default: workspace),
then --fallback-root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseCoverageKind(viper.GetString(coverageKindKey))
			if err != nil {
				return err
			}

			wf, err := resolveWorkflow(cmd, nil)
			if err != nil {
				return err
			}

			return wf.Lcov(cmd.Context(), domain.LcovArgs{
				Path:         m.Path(args[0]),
				BaseFolder:   m.Path(lcovBaseFolderFlag),
				FallbackRoot: m.Path(viper.GetString(coverageFallbackKey)),
				Kind:         kind,
			})
		},
	}

	configureLcovFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(lcovCmd)
}

func configureLcovFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lcovBaseFolderFlag, baseFolderFlagName, "", "directory relative source paths resolve against")

	cmd.Flags().StringVar(&lcovFallbackRootFlag, fallbackRootFlagName, viper.GetString(coverageFallbackKey), "directory tried when a source is missing under the base folder")
	bindFlagToConfig(cmd.Flags().Lookup(fallbackRootFlagName), coverageFallbackKey)

	cmd.Flags().StringVar(&lcovKindFlag, kindFlagName, viper.GetString(coverageKindKey), "coverage kind to summarize: line or branch")
	bindFlagToConfig(cmd.Flags().Lookup(kindFlagName), coverageKindKey)
}
