// Package cmd implements the lodestar command line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lodestar-dev/lodestar/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "lodestar",
	Short: "Persistent session manager for codebase analysis tasks",
	Long: `Lodestar tracks every in-flight analysis task in a crash-safe session
ledger, decides deterministically whether a task runs with the local or
the remote deep-analysis executor, and ages out abandoned sessions.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/lodestar/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("state-dir", "", "state directory holding the session ledger (default is $HOME/.lodestar)")
	_ = viper.BindPFlag("storage.dir", rootCmd.PersistentFlags().Lookup("state-dir"))

	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/lodestar")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LODESTAR")
	// Replace dots with underscores for nested keys in env vars
	// e.g., LODESTAR_MODE_DEFAULT for mode.default
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
