package cmd

import (
	"github.com/spf13/cobra"

	_ "github.com/joho/godotenv/autoload"
)

// Build metadata, overridden through ldflags by the release pipeline.
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "alcove",
	Short: "Alcove - Addon Container Orchestration & Proxy",
	Long: `Alcove runs user-installed addons as managed containers and proxies
authenticated API calls to them over a private network.`,
}

// Execute wires the build metadata into the command tree and runs it.
func Execute(version, commit, date string) error {
	if version != "" {
		BuildVersion = version
	}
	if commit != "" {
		BuildCommit = commit
	}
	if date != "" {
		BuildDate = date
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "alcove.yml", "config file path")
}
