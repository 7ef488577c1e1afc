package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/parley/internal/tui"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Chat assistant with a general mode and a project planning mode",
	Long: `parley answers general questions and turns project ideas into step-by-step plans.

Run "parley serve" to start the HTTP server, then "parley chat" for the
terminal client or "parley ask" for one-shot questions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			tui.DisableColor()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the parley version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "parley version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd, stopCmd, statusCmd, mcpCmd)
	rootCmd.AddCommand(chatCmd, askCmd, historyCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
