package cli

import (
	"time"

	"github.com/spf13/cobra"

	"greeks-dashboard/internal/cache"
	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/resilience"
	"greeks-dashboard/internal/server"
	"greeks-dashboard/internal/stream"
)

// addServeCommands adds the HTTP service command.
func addServeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve series as JSON, CSV and a websocket stream for the browser dashboard",
		Long: `Start the HTTP service used by the browser dashboard.

  GET /api/series             derived series as JSON
  GET /api/series/export.csv  CSV download
  GET /api/series/stream      websocket push of every poll
  GET /api/expiries           expiries for an index
  GET /healthz, /metrics

Each request's Authorization header is forwarded to the backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			srvCfg := cfg.Server
			if cmd.Flags().Changed("host") {
				srvCfg.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				srvCfg.Port, _ = cmd.Flags().GetInt("port")
			}
			requireAuth, _ := cmd.Flags().GetBool("require-auth")

			client, err := app.ServerClient(requireAuth)
			if err != nil {
				return err
			}
			respCache, err := cache.New(cfg.Cache)
			if err != nil {
				return err
			}
			defer respCache.Close()

			svc := dashboard.NewService(app.Fetcher(client),
				dashboard.WithMetrics(app.Metrics),
				dashboard.WithLogger(app.Logger),
			)

			ctx := cmd.Context()
			hub := stream.NewHub()
			hub.Start(ctx)
			defer hub.Stop()
			streams := dashboard.NewStreams(svc, hub, cfg.Dashboard.PollInterval, app.Logger)
			if err := app.Metrics.RegisterHub(hub.GetMetrics); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to register stream hub metrics")
			}

			health := app.Health(client)
			health.Register("response_cache", resilience.PingCheck("response_cache", 100*time.Millisecond, respCache.Ping))

			srv := server.New(server.Deps{
				Loader:   svc,
				Streams:  streams,
				Expiries: client,
				Cache:    respCache,
				Metrics:  app.Metrics,
				Health:   health,
				Audit:    app.Audit,
				Logger:   app.Logger,
			}, server.Options{
				Server:      srvCfg,
				Dashboard:   cfg.Dashboard,
				LiveTTL:     cfg.Cache.LiveTTL,
				ClosedTTL:   cfg.Cache.ClosedTTL,
				RequireAuth: requireAuth,
			})

			output := NewOutput(cmd)
			if !output.IsJSON() {
				output.Info("Serving on http://%s (backend %s, cache %s)", srvCfg.Addr(), cfg.Backend.URL, cfg.Cache.Backend)
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("host", app.Config.Server.Host, "listen host")
	cmd.Flags().Int("port", app.Config.Server.Port, "listen port")
	cmd.Flags().Bool("require-auth", true, "reject API requests without a bearer token")
	return cmd
}
