// Package cmd provides the bladekit command-line interface.
//
// Configuration is read, from highest to lowest priority, from command-line
// flags, BLADEKIT_<SECTION>_<KEY> environment variables, the file named by
// --config or BLADEKIT_CONFIG_FILE, and .bladekit.yml in the working
// directory.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/bladekit/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bladekit",
	Short: "Render, compile and preview directive templates",
	Long: `bladekit renders views written in a directive template language
(@if, @foreach, @extends, @section, @include, ...) on top of Go's html/template.

Quick Start:
  bladekit list                   List every view under the view paths
  bladekit render home            Render a view to stdout
  bladekit compile                Precompile directive templates into the cache
  bladekit serve                  Preview views with live reload`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Errors are reported through the structured error handler.
func Execute() error {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		reportError(commandContext(cmd), rootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .bladekit.yml, can also use BLADEKIT_CONFIG_FILE)")
	flags.StringSlice("paths", nil, "view directories (default ./views)")
	flags.String("cache-dir", "", "directory for compiled views (default .bladekit/cache)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	AddFlagValidation(rootCmd.PersistentFlags(), "log-format", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"paths":      "views.paths",
		"cache-dir":  "views.cache_dir",
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}

// initConfig points viper at the config file and environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(config.FileName)
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer)
	viper.AutomaticEnv()

	// A missing config file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
