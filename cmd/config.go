package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "tessel"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	workspaceFlagName    = "workspace"
	bazelFlagName        = "bazel"
	outputFlagName       = "output"
	envFileFlagName      = "env-file"
	verboseFlagName      = "verbose"
	runParallelFlagName  = "parallel"
	runFlagFlagName      = "flag"
	testFilterFlagName   = "test-filter"
	coverageFlagName     = "coverage"
	expandSuitesFlagName = "expand-suites"
	excludeFlagName      = "exclude"

	workspaceKey           = "workspace"
	bazelKey               = "bazel"
	envFileKey             = "env_file"
	discoveryRootsKey      = "discovery.roots"
	discoveryExcludeKey    = "discovery.exclude"
	discoveryTagsKey       = "discovery.tags"
	runParallelConfigKey   = "run.parallel"
	runSequentialKindsKey  = "run.sequential_kinds"
	runFlagsKey            = "run.flags"
	runDefaultFlagsKey     = "run.default_flags"
	runTestLogsKey         = "run.testlogs"
	coverageFallbackKey    = "coverage.fallback_root"
	coverageKindKey        = "coverage.kind"
	metricsTextfileKey     = "metrics.textfile"
	watchDebounceMillisKey = "watch.debounce_ms"

	defaultWorkspace           = "."
	defaultBazel               = "bazel"
	defaultReportsDir          = ".tessel"
	defaultRunParallel         = 4
	defaultCoverageKind        = "line"
	defaultWatchDebounceMillis = 300

	envPrefix = "TESSEL"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".tessel.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var (
	defaultRoots           = []string{"//..."}
	defaultTags            = []string{"exclusive", "external", "manual"}
	defaultSequentialKinds = []string{"test_suite"}
	defaultRunFlags        = map[string]string{"test_output": "errors"}
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(workspaceKey, defaultWorkspace)
	viper.SetDefault(bazelKey, defaultBazel)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(envFileKey, "")

	viper.SetDefault(discoveryRootsKey, defaultRoots)
	viper.SetDefault(discoveryExcludeKey, []string{})
	viper.SetDefault(discoveryTagsKey, defaultTags)

	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(runSequentialKindsKey, defaultSequentialKinds)
	viper.SetDefault(runFlagsKey, map[string]string{})
	viper.SetDefault(runDefaultFlagsKey, defaultRunFlags)
	viper.SetDefault(runTestLogsKey, "")

	viper.SetDefault(coverageFallbackKey, "")
	viper.SetDefault(coverageKindKey, defaultCoverageKind)
	viper.SetDefault(metricsTextfileKey, "")
	viper.SetDefault(watchDebounceMillisKey, defaultWatchDebounceMillis)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}

// flagMap reads a string map config key, dropping empty keys.
func flagMap(key string) map[string]string {
	values := viper.GetStringMapString(key)

	flags := make(map[string]string, len(values))

	for name, value := range values {
		if name = strings.TrimSpace(name); name != "" {
			flags[name] = value
		}
	}

	return flags
}
