// Package cmd implements the flowbroker operator CLI (spec §6): a
// one-shot command for every action against the shared Redis/SQLite state,
// plus `serve`, the sole long-running command.
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "flowbroker",
	Short: "flowbroker - conversational flow execution engine",
	Long:  color.CyanString(logo) + "\nMulti-tenant flow execution, session store, and webhook dispatcher.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(flowsCmd)
	rootCmd.AddCommand(webhooksCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("Version")
		fmt.Printf("flowbroker %s\n", version)
	},
}

// Execute runs the root command and returns the process exit code,
// mapped from any RunE error per spec §6.
func Execute() int {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		printErr("Error: %v", err)
		if code == 0 {
			code = 1
		}
		return code
	}
	return ExitOK
}
