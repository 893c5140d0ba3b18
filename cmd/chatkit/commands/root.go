package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatkit",
	Short: "Terminal client for the chat widget core",
	Long: `chatkit drives a full widget session from the terminal: model
streaming, action routing, alert management, and persistence.

Configuration comes from a YAML file, overridable per flag. State persists
under the data directory between runs.

Usage:
  chatkit chat --config chatkit.yaml
  chatkit chat --proxy https://host.example/api/chat`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
