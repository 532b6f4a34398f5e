package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of mimic",
		// The version needs no config or database.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			v := currentVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "mimic %s (commit %s, built %s)\n", v.Version, v.Commit, v.BuildDate)
		},
	}
}
