package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/export"
	"greeks-dashboard/internal/greeks"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/pkg/utils"
)

const fetchTimeout = 2 * time.Minute

// addSeriesCommands adds the commands that fetch and show a series.
func addSeriesCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSeriesCmd(app))
	rootCmd.AddCommand(newTrendCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newExpiriesCmd(app))
}

// addQueryFlags registers the series selection flags with config defaults.
func addQueryFlags(fs *pflag.FlagSet, app *App) {
	d := app.Config.Dashboard
	fs.String("date", "", "trading day YYYY-MM-DD (default: latest trading day)")
	fs.String("index", d.Index, "index: NIFTY, BANKNIFTY, FINNIFTY, MIDCPNIFTY, SENSEX")
	fs.String("expiry", d.Expiry, "expiry like 25JAN or YYYY-MM-DD (default: nearest)")
	fs.String("source", d.Source, "feed: live or historical")
	fs.Bool("baseline", d.Baseline, "rebase against the first sample of the day")
	fs.String("truncate", d.Truncate, "grid end for today: full or now")
}

// queryFromFlags validates the selection flags into a dashboard request.
func queryFromFlags(cmd *cobra.Command, app *App) (dashboard.Request, error) {
	fs := cmd.Flags()
	dateStr, _ := fs.GetString("date")
	indexStr, _ := fs.GetString("index")
	expiryStr, _ := fs.GetString("expiry")
	sourceStr, _ := fs.GetString("source")
	baseline, _ := fs.GetBool("baseline")
	truncStr, _ := fs.GetString("truncate")

	date := utils.LatestTradingDay(app.Now())
	if dateStr != "" {
		s, err := greeks.ParseSessionDate(dateStr)
		if err != nil {
			return dashboard.Request{}, err
		}
		date = s.Date
	}
	index, err := security.ValidateIndex(indexStr)
	if err != nil {
		return dashboard.Request{}, err
	}
	expiry, err := security.ValidateExpiry(expiryStr)
	if err != nil {
		return dashboard.Request{}, err
	}
	source, err := security.ValidateSource(sourceStr)
	if err != nil {
		return dashboard.Request{}, err
	}
	trunc, err := greeks.ParseTruncation(truncStr)
	if err != nil {
		return dashboard.Request{}, err
	}

	return dashboard.Request{
		Query: models.SeriesQuery{
			Date:   date,
			Index:  index,
			Expiry: expiry,
			Source: source,
		},
		Baseline:   baseline,
		Truncation: trunc,
	}, nil
}

// loadSeries resolves the flags, checks the session and runs the pipeline.
func loadSeries(cmd *cobra.Command, app *App) (*models.Series, error) {
	req, err := queryFromFlags(cmd, app)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
	defer cancel()

	if _, err := app.Authorize(ctx, security.OpViewSeries); err != nil {
		return nil, err
	}
	svc, err := app.Service()
	if err != nil {
		return nil, err
	}
	return svc.Load(ctx, req)
}

func newSeriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Show the per-minute Greeks series for one trading day",
		Long: `Fetch raw Greek samples, align them onto the one-minute trading grid and show
net put-call values with the Vega trend. Only minutes with data are shown
unless --all is given.`,
		Example: `  greeks series --index BANKNIFTY --expiry 25JAN
  greeks series --date 2024-01-15 --baseline --limit 30
  greeks series --json > series.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			series, err := loadSeries(cmd, app)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(series)
			}

			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")
			precision, _ := cmd.Flags().GetInt("precision")

			printSeriesHeader(output, series)
			if series.Summary.FilledSlots == 0 && !all {
				output.Warning("No samples for this selection yet")
				return nil
			}
			renderSeriesTable(output, visibleSlots(series, all, limit), precision)
			return nil
		},
	}
	addQueryFlags(cmd.Flags(), app)
	cmd.Flags().Bool("all", false, "include minutes without data")
	cmd.Flags().Int("limit", 0, "show only the newest N rows (0 = all)")
	cmd.Flags().Int("precision", app.Config.Export.Precision, "decimal places")
	return cmd
}

func printSeriesHeader(output *Output, series *models.Series) {
	q := series.Query
	expiry := q.Expiry
	if expiry == "" {
		expiry = "nearest"
	}
	output.Bold("%s %s  %s  (%s)", q.Index, expiry, q.Date.Format("Mon 02 Jan 2006"), q.Source)
	line := fmt.Sprintf("%d/%d minutes with data", series.Summary.FilledSlots, series.Summary.TotalSlots)
	if series.Dropped > 0 {
		line += fmt.Sprintf(", %d samples dropped", series.Dropped)
	}
	if series.BaselineApplied {
		line += ", rebased to first sample"
	}
	output.Dim("%s", line)
	if latest := series.Summary.Latest; latest != nil {
		output.Printf("Latest %s  trend %s\n", utils.FormatClock(latest.Timestamp), output.Trend(latest.Trend))
	}
	output.Println()
}

func newTrendCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show the latest Vega trend and the day's trend histogram",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			series, err := loadSeries(cmd, app)
			if err != nil {
				return err
			}
			sum := series.Summary

			if output.IsJSON() {
				out := map[string]interface{}{
					"query":        series.Query,
					"latest_trend": sum.LatestTrend,
					"trend_counts": sum.TrendCounts,
					"filled_slots": sum.FilledSlots,
				}
				if sum.Latest != nil {
					out["latest_time"] = sum.Latest.Timestamp
					if v, ok := sum.Latest.Diff(models.Vega); ok {
						out["net_vega"] = v
					}
				}
				return output.JSON(out)
			}

			printSeriesHeader(output, series)
			if sum.Latest == nil {
				output.Warning("No samples for this selection yet")
				return nil
			}
			v, ok := sum.Latest.Diff(models.Vega)
			output.Printf("Net Vega     %s\n", output.Signed(utils.FormatSigned(v, ok, 2), v, ok))
			output.Printf("Vega path    %s\n", vegaSparkline(series))
			output.Println()
			renderTrendHistogram(output, sum)
			return nil
		},
	}
	addQueryFlags(cmd.Flags(), app)
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the series to CSV",
		Example: `  greeks export --index NIFTY --date 2024-01-15
  greeks export --out - --order asc | head`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			orderStr, _ := cmd.Flags().GetString("order")
			order, err := export.ParseOrder(orderStr)
			if err != nil {
				return err
			}
			precision, _ := cmd.Flags().GetInt("precision")
			includeEmpty, _ := cmd.Flags().GetBool("include-empty")
			opts := export.Options{Order: order, Precision: precision, IncludeEmpty: includeEmpty}

			if _, err := app.Authorize(cmd.Context(), security.OpExport); err != nil {
				return err
			}
			series, err := loadSeries(cmd, app)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "-" {
				_, err := export.WriteCSV(cmd.OutOrStdout(), series, opts)
				return err
			}
			if out == "" {
				out = filepath.Join(exportDir(app), export.Filename(series))
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("creating export directory: %w", err)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			rows, err := export.WriteCSV(f, series, opts)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			_ = app.Audit.LogExport(cmd.Context(), out, rows)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"file": out, "rows": rows})
			}
			output.Success("✓ Wrote %d rows to %s", rows, out)
			return nil
		},
	}
	addQueryFlags(cmd.Flags(), app)
	cfg := app.Config.Export
	cmd.Flags().StringP("out", "o", "", "output file, '-' for stdout (default: export dir + generated name)")
	cmd.Flags().String("order", cfg.Order, "row order: asc or desc")
	cmd.Flags().Int("precision", cfg.Precision, "decimal places")
	cmd.Flags().Bool("include-empty", cfg.IncludeEmpty, "write rows for minutes without data")
	return cmd
}

func exportDir(app *App) string {
	if app.Config.Export.Dir != "" {
		return app.Config.Export.Dir
	}
	return "."
}

func newExpiriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiries",
		Short: "List the expiries the backend publishes for an index",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			indexStr, _ := cmd.Flags().GetString("index")
			index, err := security.ValidateIndex(indexStr)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := app.RequireSession(); err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			expiries, err := client.ListExpiries(ctx, index)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"index": index, "expiries": expiries})
			}
			if len(expiries) == 0 {
				output.Warning("No expiries published for %s", index)
				return nil
			}
			output.Bold("%s expiries", index)
			for _, e := range expiries {
				output.Printf("  %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().String("index", app.Config.Dashboard.Index, "index symbol")
	return cmd
}
