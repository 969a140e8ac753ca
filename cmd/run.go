package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tessel.dev/pkg/tessel/internal/domain"
	m "tessel.dev/pkg/tessel/internal/model"
)

var runParallelFlag int
var runFlagOverrides []string
var runTestFilterFlag string
var runCoverageFlag bool

const runLongDescription = `Discover test targets and run the selected ones (default: all).
Targets of the run.sequential_kinds kinds run one at a time before the rest,
which run concurrently.

` + targetPatternsHelp

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [labels|packages...]",
		Short: "Run test targets",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseCoverageKind(viper.GetString(coverageKindKey))
			if err != nil {
				return err
			}

			wf, err := resolveWorkflow(cmd, nil)
			if err != nil {
				return err
			}

			return wf.Run(cmd.Context(), domain.RunArgs{
				DiscoverArgs:    domain.DiscoverArgs{ExpandSuites: expandSuitesFlag},
				Selection:       parseSelection(args),
				Parallel:        viper.GetInt(runParallelConfigKey),
				SequentialKinds: viper.GetStringSlice(runSequentialKindsKey),
				Overrides:       parseFlagOverrides(runFlagOverrides),
				TestFilter:      runTestFilterFlag,
				Coverage:        runCoverageFlag,
				CoverageKind:    kind,
				FallbackRoot:    m.Path(viper.GetString(coverageFallbackKey)),
				TestLogs:        m.Path(viper.GetString(runTestLogsKey)),
				Reports:         m.Path(viper.GetString(outputFlagName)),
				MetricsTextfile: viper.GetString(metricsTextfileKey),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "maximum number of targets running at once (1-64)")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().StringArrayVarP(&runFlagOverrides, runFlagFlagName, "f", nil, "build tool flag for this run as key=value (can be repeated)")
	cmd.Flags().StringVar(&runTestFilterFlag, testFilterFlagName, "", "only run test cases matching this filter")
	cmd.Flags().BoolVar(&runCoverageFlag, coverageFlagName, false, "collect line coverage")

	configureExpandSuitesFlag(cmd)
}

// parseFlagOverrides turns repeated key=value arguments into flags. Later values win.
func parseFlagOverrides(raw []string) m.Flags {
	flags := m.Flags{}

	for _, entry := range raw {
		key, value := m.ParseFlag(entry)
		if key == "" {
			continue
		}

		flags[key] = value
	}

	return flags
}

func parseCoverageKind(value string) (m.CoverageKind, error) {
	switch kind := m.CoverageKind(value); kind {
	case "", m.CoverageLine:
		return m.CoverageLine, nil
	case m.CoverageBranch:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown coverage kind %q (want %s or %s)", value, m.CoverageLine, m.CoverageBranch)
	}
}
