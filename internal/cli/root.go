package cli

import (
	"context"
	"fmt"
	"image/color"

	"github.com/charmbracelet/fang"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/ploston/dael/internal/config"
	"github.com/ploston/dael/internal/obs"
	"github.com/ploston/dael/internal/style"
)

var (
	// Global flags
	cfgFile      string
	logLevel     string
	outputFormat string
	quiet        bool
	verbose      bool

	// loadedConfig is populated by initConfig and consulted by every
	// subcommand that needs the process-wide configuration.
	loadedConfig *config.Config
	configMode   config.Mode
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dael",
	Short: "DAEL - Deterministic Agent Execution Layer",
	Long: `DAEL runs deterministic, one-shot workflows made of tool and code steps
against MCP tool backends, in memory, with a fixed retry/timeout policy.

The dael CLI serves workflows over MCP (stdio or HTTP/WebSocket), validates
workflow files, inspects the tool registry, and runs a single workflow for
local testing.`,
	Version: getVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, mode, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		loadedConfig = cfg
		configMode = mode
		initLogging(cfg)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return fang.Execute(context.Background(), rootCmd, fang.WithColorSchemeFunc(func(lightDark lipgloss.LightDarkFunc) fang.ColorScheme {
		return fang.ColorScheme{
			Base:           style.PrimaryTextColor,
			Title:          style.AccentColor,
			Description:    style.PrimaryTextColor,
			Codeblock:      style.CodeColor,
			Program:        style.AccentColor,
			DimmedArgument: style.MutedColor,
			Comment:        style.MutedColor,
			Flag:           style.InfoColor,
			FlagDefault:    style.MutedColor,
			Command:        style.SuccessColor,
			QuotedString:   style.WarningColor,
			Argument:       style.PrimaryTextColor,
			Help:           style.InfoColor,
			Dash:           style.MutedColor,
			ErrorHeader:    [2]color.Color{style.ErrorColor, style.ErrorBgColor},
			ErrorDetails:   style.ErrorColor,
		}
	}))
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $DAEL_CONFIG, ./dael-config.yaml, or ~/.dael/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "text", "output format (text, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper so subcommands can read them the same way the
	// teacher's CLI does, independent of the layered configuration file.
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initLogging configures the global logger from the --log-level flag,
// falling back to the loaded configuration's logging.level when the flag
// is left at its default.
func initLogging(cfg *config.Config) {
	level := logLevel
	if !rootCmd.PersistentFlags().Changed("log-level") && cfg.Logging.Level != "" {
		level = cfg.Logging.Level
	}
	logging := cfg.Logging
	logging.Level = level
	log.Logger = obs.NewLogger(logging)
}

// getVersion returns the version information
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}
