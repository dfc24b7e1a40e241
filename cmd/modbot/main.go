package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "modbot",
	Short: "modbot - community moderation bot",
	Long: `modbot walks users through reporting harmful messages, forwards
monitored-channel posts with toxicity scores to moderators, and applies
moderator decisions back to the chat platform through a bridge.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, configCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
