package cli

import (
	"github.com/spf13/cobra"

	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/notify"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/internal/stream"
	"greeks-dashboard/pkg/utils"
)

const clearScreen = "\033[H\033[2J"

var errSessionLost = errors.Wrap(errors.ErrSessionExpired, "session ended while watching")

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the live series and redraw the newest rows (Ctrl-C to stop)",
		Long: `Poll the backend every dashboard.poll_interval while the market is open and
redraw the newest minutes. For a past trading day the series is shown once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			req, err := queryFromFlags(cmd, app)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := app.Authorize(ctx, security.OpViewSeries); err != nil {
				return err
			}
			svc, err := app.Service()
			if err != nil {
				return err
			}

			rows, _ := cmd.Flags().GetInt("rows")
			precision, _ := cmd.Flags().GetInt("precision")
			interval, _ := cmd.Flags().GetDuration("interval")

			hub := stream.NewHub()
			hub.Start(ctx)
			defer hub.Stop()
			streams := dashboard.NewStreams(svc, hub, interval, app.Logger)
			defer streams.Close()

			sub, release := streams.Subscribe(ctx, req)
			defer release()

			live := utils.IsLiveSession(req.Query.Date, app.Now())
			noAlerts, _ := cmd.Flags().GetBool("no-alerts")
			var alerts *notify.SeriesAlerts
			if live && !noAlerts && app.Config.Notify.Enabled && !output.IsJSON() {
				alerts = notify.NewSeriesAlerts(app.Notifier(output))
			}
			for {
				select {
				case <-ctx.Done():
					output.Println()
					output.Dim("Stopped")
					return nil
				case snap, ok := <-sub.C:
					if !ok {
						return nil
					}
					if err := drawSnapshot(output, app, snap, rows, precision, live); err != nil {
						return err
					}
					if alerts != nil {
						if err := alerts.Observe(ctx, snap.Series, snap.Error, app.Session.Status().Warning); err != nil {
							app.Logger.Warn().Err(err).Msg("Failed to send alert")
						}
					}
					if !live {
						if snap.Error != "" {
							return errors.New(snap.Error)
						}
						return nil
					}
				}
			}
		},
	}
	addQueryFlags(cmd.Flags(), app)
	cmd.Flags().Int("rows", 15, "number of newest minutes to show")
	cmd.Flags().Int("precision", app.Config.Export.Precision, "decimal places")
	cmd.Flags().Duration("interval", app.Config.Dashboard.PollInterval, "poll interval")
	cmd.Flags().Bool("no-alerts", false, "do not raise trend or session alerts")
	return cmd
}

// drawSnapshot redraws the screen for one poll. A failed poll keeps watching
// unless the session is gone.
func drawSnapshot(output *Output, app *App, snap stream.Snapshot, rows, precision int, live bool) error {
	if output.IsJSON() {
		return output.JSON(snap)
	}
	if live && output.colorEnabled {
		output.Printf("%s", clearScreen)
	}

	if snap.Series != nil {
		printSeriesHeader(output, snap.Series)
		renderSeriesTable(output, visibleSlots(snap.Series, false, rows), precision)
	}
	output.Println()

	if snap.Error != "" {
		output.Error("Poll failed: %s", snap.Error)
		if !app.Session.IsAuthenticated() {
			return errSessionLost
		}
	}

	status := app.Session.Status()
	footer := "updated " + snap.At.In(utils.IndiaLocation).Format("15:04:05") +
		"  session " + utils.FormatRemaining(status.Remaining)
	if status.Warning {
		output.Warning("%s  (session expiring soon, run 'greeks login')", footer)
	} else {
		output.Dim("%s", footer)
	}
	return nil
}
