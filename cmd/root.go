// Package cmd provides the root command and CLI setup for tessel.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"tessel.dev/pkg/tessel/internal/adapter"
	"tessel.dev/pkg/tessel/internal/controller"
	"tessel.dev/pkg/tessel/internal/domain"
	"tessel.dev/pkg/tessel/internal/metrics"
	m "tessel.dev/pkg/tessel/internal/model"
)

// workflow is built on first use from the resolved configuration. Tests replace it.
var workflow domain.Workflow

var workspaceFlag string
var bazelFlag string
var reportsOutputDirFlag string
var envFileFlag string
var verboseFlag bool

// excludePatterns is a root-level flag that filters discovered labels.
var excludePatterns []string

const targetPatternsHelp = `Targets are addressed by label:
  - //pkg:name_test   a single test target
  - //pkg             every target of a package
  - //...             discovery root covering the whole workspace`

const rootLongDescription = `Tessel discovers the test targets of a Bazel workspace, keeps them in a
package tree, runs them with bounded concurrency and reports per-case results
and line coverage.

` + targetPatternsHelp

func init() {
	configureRootFlags(rootCmd)
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tessel",
		Short: "Bazel test explorer and runner",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newRootCmd() *cobra.Command {
	cmd := baseRootCmd()
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&workspaceFlag, workspaceFlagName, "w", viper.GetString(workspaceKey), "workspace directory (searched upwards for MODULE.bazel or WORKSPACE)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(workspaceFlagName), workspaceKey)

	cmd.PersistentFlags().StringVar(&bazelFlag, bazelFlagName, viper.GetString(bazelKey), "build tool binary used for queries and test runs")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(bazelFlagName), bazelKey)

	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for coverage history",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringVar(&envFileFlag, envFileFlagName, viper.GetString(envFileKey), "dotenv file with variables passed to the build tool")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(envFileFlagName), envFileKey)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(discoveryExcludeKey), "exclude labels matching a glob pattern (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), discoveryExcludeKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt stops new test launches; running ones finish.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := executeRoot(ctx, rootCmd)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

// executeRoot runs cmd and prints its error unless the workflow already showed it to the
// user, so every failure produces exactly one notice.
func executeRoot(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if err != nil && !domain.IsReported(err) {
		cmd.PrintErrln(cmd.ErrPrefix(), err.Error())
	}

	return err
}

// resolveWorkflow returns the configured workflow, building it on first use. roots, when
// set, replace the configured discovery roots.
func resolveWorkflow(cmd *cobra.Command, roots []string) (domain.Workflow, error) {
	if workflow != nil {
		return workflow, nil
	}

	wf, err := buildWorkflow(cmd, roots)
	if err != nil {
		return nil, err
	}

	workflow = wf

	return workflow, nil
}

func buildWorkflow(cmd *cobra.Command, roots []string) (domain.Workflow, error) {
	fsAdapter := adapter.NewLocalSourceFSAdapter()

	workspace, err := fsAdapter.FindWorkspaceRoot(m.Path(viper.GetString(workspaceKey)))
	if err != nil {
		return nil, fmt.Errorf("locate workspace: %w", err)
	}

	if len(roots) == 0 {
		roots = viper.GetStringSlice(discoveryRootsKey)
	}

	isTTY := controller.IsTTY(os.Stdout)
	ui := controller.NewUI(cmd, isTTY)

	queryAdapter := adapter.NewLocalQueryAdapter(viper.GetString(bazelKey))
	testAdapter := adapter.NewLocalTestRunnerAdapter(viper.GetString(bazelKey), viper.GetString(envFileKey))

	discovery := domain.NewTargetDiscoveryCache(queryAdapter, domain.DiscoveryConfig{
		Workspace: workspace,
		Roots:     roots,
		Exclude:   viper.GetStringSlice(discoveryExcludeKey),
		Tags:      viper.GetStringSlice(discoveryTagsKey),
	})

	coverageStore := domain.NewCoverageStore()
	resultParser := domain.NewStructuredResultParser()
	coverageParser := domain.NewCoverageRecordParser(fsAdapter)
	runMetrics := metrics.NewRunMetrics()

	orchestrator := domain.NewOrchestrator(domain.OrchestratorDeps{
		Runner:         testAdapter,
		Sink:           adapter.NewWriterOutputSink(outputSinkWriter(cmd, isTTY)),
		FS:             fsAdapter,
		GoFiles:        adapter.NewLocalGoFileAdapter(),
		ResultParser:   resultParser,
		CoverageParser: coverageParser,
		Coverage:       coverageStore,
		Flags: domain.NewFlagResolver(domain.FlagConfig{
			Defaults: flagMap(runDefaultFlagsKey),
			Global:   flagMap(runFlagsKey),
		}, discovery),
		Metrics: runMetrics,
	})

	debounce := time.Duration(viper.GetInt(watchDebounceMillisKey)) * time.Millisecond

	return domain.NewWorkflow(domain.WorkflowDeps{
		Workspace:      workspace,
		FS:             fsAdapter,
		Reports:        adapter.NewLocalReportStore(),
		Watcher:        adapter.NewFSNotifyWatcher(debounce),
		Store:          adapter.NewMemoryNodeStore(),
		UI:             ui,
		Discovery:      discovery,
		Reconciler:     domain.NewTreeReconciler(fsAdapter, workspace),
		Orchestrator:   orchestrator,
		ResultParser:   resultParser,
		CoverageParser: coverageParser,
		CoverageStore:  coverageStore,
		Metrics:        runMetrics,
	}), nil
}

// outputSinkWriter is where full test output goes. The live view owns the terminal, so
// output is kept in a rotating file under the reports directory instead.
func outputSinkWriter(cmd *cobra.Command, isTTY bool) io.Writer {
	if !isTTY {
		return cmd.ErrOrStderr()
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(viper.GetString(outputFlagName), "test-output.log"),
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}
}

// parseSelection turns command arguments into node ids. An empty result selects every
// target; so does the "//..." wildcard.
func parseSelection(args []string) []string {
	selection := make([]string, 0, len(args))

	for _, arg := range args {
		label := normalizeLabel(arg)
		if label == allTargetsPattern {
			return nil
		}

		selection = append(selection, label)
	}

	return selection
}

const allTargetsPattern = "//..."

// normalizeLabel accepts "pkg:name" and "//pkg/..." style arguments. A trailing "/..."
// selects the package group.
func normalizeLabel(arg string) string {
	label := strings.TrimSpace(arg)
	if label == "" || label == allTargetsPattern {
		return label
	}

	if !strings.HasPrefix(label, "//") && !strings.HasPrefix(label, "@") {
		label = "//" + strings.TrimPrefix(label, "/")
	}

	if trimmed, ok := strings.CutSuffix(label, "/..."); ok && trimmed != "/" {
		return trimmed
	}

	return label
}
