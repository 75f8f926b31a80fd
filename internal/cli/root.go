// Package cli provides the command-line interface for the Greeks dashboard.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"greeks-dashboard/internal/config"
	"greeks-dashboard/internal/logging"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// Execute builds the application, runs the command line and releases
// everything it opened.
func Execute(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	app := NewApp(cfg, logger)
	defer app.Close()
	return NewRootCmd(app).ExecuteContext(ctx)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	cfg := app.Config
	rootCmd := &cobra.Command{
		Use:   "greeks",
		Short: "Option Greeks dashboard for Indian index options",
		Long: `greeks fetches per-tick option Greeks from the analytics backend, aligns them
onto the one-minute trading grid (09:15-15:30 IST), and shows net put-call
values with a Vega trend label.

Use 'greeks login' first, then 'greeks series' or 'greeks watch'.
Run 'greeks serve' to expose the same series to the browser dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			// Keeps the idle timer across invocations.
			if err := app.Session.Persist(); err != nil {
				app.Logger.Debug().Err(err).Msg("Failed to persist session")
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/greeks-dashboard)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", !cfg.UI.ColorEnabled, "disable coloured output")

	addCoreCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addSeriesCommands(rootCmd, app)
	addServeCommands(rootCmd, app)
	addAdminCommands(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("greeks v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and check the configuration in config.toml.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				redacted := *app.Config
				if redacted.Credentials.Backend.Password != "" {
					redacted.Credentials.Backend.Password = "********"
				}
				return output.JSON(&redacted)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"dir": app.Config.Dir(), "file": app.Config.FilePath()})
				return
			}
			output.Println(app.Config.Dir())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				if output.IsJSON() {
					_ = output.JSON(map[string]interface{}{"valid": false, "error": err.Error()})
				} else {
					output.Error("Configuration validation failed: %v", err)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backend")
	output.Printf("  URL:             %s\n", cfg.Backend.URL)
	output.Printf("  Timeout:         %s\n", cfg.Backend.Timeout)
	output.Printf("  Max Retries:     %d\n", cfg.Backend.MaxRetries)
	output.Printf("  Rate Limit:      %.1f req/s (burst %d)\n", cfg.Backend.RateLimit, cfg.Backend.Burst)
	output.Println()

	output.Bold("Dashboard")
	output.Printf("  Index:           %s\n", cfg.Dashboard.Index)
	output.Printf("  Expiry:          %s\n", orDash(cfg.Dashboard.Expiry))
	output.Printf("  Source:          %s\n", cfg.Dashboard.Source)
	output.Printf("  Baseline:        %v\n", cfg.Dashboard.Baseline)
	output.Printf("  Truncate:        %s\n", cfg.Dashboard.Truncate)
	output.Printf("  Poll Interval:   %s\n", cfg.Dashboard.PollInterval)
	output.Println()

	output.Bold("Session")
	output.Printf("  Idle Timeout:    %s\n", cfg.Session.IdleTimeout)
	output.Printf("  Warn Before:     %s\n", cfg.Session.WarnBefore)
	output.Printf("  Persist:         %v\n", cfg.Session.Persist)
	output.Println()

	output.Bold("Server")
	output.Printf("  Listen:          %s\n", cfg.Server.Addr())
	output.Printf("  Cache:           %s (live %s, closed %s)\n", cfg.Cache.Backend, cfg.Cache.LiveTTL, cfg.Cache.ClosedTTL)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Sample Cache:    %v\n", cfg.Store.Enabled)
	output.Printf("  Path:            %s\n", cfg.StorePath())
	output.Printf("  Retention:       %d days\n", cfg.Store.RetentionDays)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %s\n", cfg.LogFilePath())
	output.Printf("  Audit:           %v\n", cfg.Logging.Audit)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// SetupLogging builds the process logger from config.
func SetupLogging(cfg *config.Config) zerolog.Logger {
	return logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		NoColor:    !cfg.UI.ColorEnabled,
		File:       true,
		FilePath:   cfg.LogFilePath(),
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	})
}
