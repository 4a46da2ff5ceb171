package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "echosd",
	Short: "Echos - runtime authorization broker for autonomous agents",
	Long: `Echos is a runtime authorization broker that sits between autonomous
agents and the side-effecting actions they attempt.

For every attempted action it renders one of three verdicts - allow, block,
or ask-a-human - based on a per-agent policy, and optionally gates repeated
actions behind short-lived scoped authorization tokens so a human does not
have to approve the same class of action twice.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
