package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of ft (overridden by ldflags at build time)
	Version = "0.3.0"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
	// Date is the build timestamp (optional ldflag)
	Date = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// The version command needs no config or database.
	PersistentPreRun: func(_ *cobra.Command, _ []string) {},
	Run: func(_ *cobra.Command, _ []string) {
		commit := resolveCommit()
		switch {
		case commit != "" && Date != "":
			fmt.Printf("ft version %s (%s, built %s)\n", Version, shortCommit(commit), Date)
		case commit != "":
			fmt.Printf("ft version %s (%s)\n", Version, shortCommit(commit))
		default:
			fmt.Printf("ft version %s\n", Version)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func resolveCommit() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
