package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/internal/session"
	"greeks-dashboard/pkg/utils"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the analytics backend",
		Long: `Log in to the analytics backend.

Username and password come from the flags, then credentials.toml, then an
interactive prompt. The session token is kept in an encrypted vault under
the config directory.`,
		Example: `  greeks login
  greeks login --username alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if username == "" {
				username = app.Config.Credentials.Backend.Username
			}
			if password == "" {
				password = app.Config.Credentials.Backend.Password
			}

			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				username = prompt(in, cmd.OutOrStdout(), "Username: ")
			}
			if password == "" {
				password = prompt(in, cmd.OutOrStdout(), "Password: ")
			}
			if err := security.ValidateUsername(username); err != nil {
				return err
			}
			if password == "" {
				return errors.NewValidationError("password", "", "password is required")
			}

			client, err := app.Client()
			if err != nil {
				return err
			}
			s, err := client.Login(ctx, username, password)
			_ = app.Audit.LogLogin(ctx, username, err)
			if err != nil {
				output.Error("Login failed: %v", err)
				return err
			}
			if err := app.Session.Start(s); err != nil {
				app.Logger.Warn().Err(err).Msg("Session not persisted")
			}
			app.Audit.SetUserID(s.User.Username)

			if output.IsJSON() {
				return output.JSON(app.Session.Status())
			}
			output.Success("✓ Logged in as %s (%s)", s.User.Username, s.User.Role)
			printStatus(output, app.Session.Status())
			return nil
		},
	}

	cmd.Flags().StringP("username", "u", "", "backend username")
	cmd.Flags().StringP("password", "p", "", "backend password (prompted when omitted)")
	return cmd
}

// prompt reads one line from in after printing label.
func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			status := app.Session.Status()
			if status.Authenticated {
				client, err := app.Client()
				if err != nil {
					return err
				}
				if err := client.Logout(ctx); err != nil {
					// The local session is cleared regardless.
					output.Warning("Backend logout failed: %v", err)
				}
				_ = app.Audit.LogLogout(ctx, status.Username)
			}
			app.Session.Clear()

			if output.IsJSON() {
				return output.JSON(map[string]bool{"logged_out": true})
			}
			output.Success("✓ Logged out")
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login session and market status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			now := app.Now()
			status := app.Session.Status()
			market := utils.MarketStatusAt(now)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"session":      status,
					"market":       market,
					"trading_day":  utils.LatestTradingDay(now).Format("2006-01-02"),
					"backend":      app.Config.Backend.URL,
					"breaker":      app.Breaker().State(),
					"server_clock": now,
				})
			}

			output.Bold("Session")
			printStatus(output, status)
			output.Println()
			output.Bold("Market")
			output.Printf("  Status:      %s\n", output.MarketStatus(market))
			output.Printf("  Trading day: %s\n", utils.LatestTradingDay(now).Format("Mon 02 Jan 2006"))
			if market == models.MarketOpen {
				output.Printf("  Closes in:   %s\n", utils.FormatRemaining(utils.TimeUntilMarketClose(now)))
			} else {
				output.Printf("  Opens:       %s\n", utils.NextMarketOpen(now).Format("Mon 02 Jan 15:04 MST"))
			}
			return nil
		},
	}
}

func printStatus(output *Output, status session.Status) {
	if !status.Authenticated {
		output.Printf("  %s\n", output.Red("Not logged in"))
		output.Dim("  Run 'greeks login' to start a session")
		return
	}
	remaining := utils.FormatRemaining(status.Remaining)
	if status.Warning {
		remaining = output.Yellow(remaining + " (expiring soon)")
	}
	output.Printf("  User:        %s (%s)\n", status.Username, status.Role)
	output.Printf("  Expires in:  %s\n", remaining)
	output.Printf("  Expires at:  %s\n", status.ExpiresAt.In(utils.IndiaLocation).Format("15:04:05 MST"))
}
