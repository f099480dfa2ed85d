package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"lumen-hq/relay/pkg/cli"
)

// Build metadata, overridden through -ldflags at release time.
var (
	Version   = "0.1.0"
	GitCommit = ""
	BuildDate = ""
)

var versionFlags struct {
	format string
}

// buildInfo is what the version command prints.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentBuildInfo()
		if cli.OutputFormat(versionFlags.format) == cli.FormatJSON {
			return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, info)
		}

		commit := info.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Printf("relay %s (commit %s)\n", info.Version, commit)
		if info.BuildDate != "" {
			fmt.Printf("  built:    %s\n", info.BuildDate)
		}
		fmt.Printf("  go:       %s\n", info.GoVersion)
		fmt.Printf("  platform: %s\n", info.Platform)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVar(&versionFlags.format, "format", "text", "output format: text, json")
}

// currentBuildInfo assembles the build metadata, falling back to the VCS
// revision stamped by the Go toolchain when no commit was injected.
func currentBuildInfo() buildInfo {
	commit := GitCommit
	if commit == "" {
		commit = "unknown"
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range bi.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
					break
				}
			}
		}
	}
	return buildInfo{
		Version:   Version,
		Commit:    commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
