package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the tessel version",
		Long:  "Print the tessel release, the source revision it was built from and the Go toolchain used.",
		Run: func(cmd *cobra.Command, _ []string) {
			info, _ := debug.ReadBuildInfo()

			for _, line := range versionLines(info) {
				cmd.Println(line)
			}
		},
	}
}

// versionLines renders build information. Missing fields are reported as unknown.
func versionLines(info *debug.BuildInfo) []string {
	if info == nil {
		return []string{"tessel version\t unknown"}
	}

	version := info.Main.Version
	if version == "" {
		version = "unknown"
	}

	lines := []string{"tessel version\t " + version}

	var revision, modified string

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}

	if revision != "" {
		if modified == "true" {
			revision += " (modified)"
		}

		lines = append(lines, "revision\t "+revision)
	}

	return append(lines, "go version\t "+info.GoVersion)
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
