package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"greeks-dashboard/internal/api"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/internal/store"
	"greeks-dashboard/pkg/utils"
)

// addAdminCommands adds the admin console commands.
func addAdminCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin console: users, backend cache and access tokens",
		Long:  "Admin console operations. All except 'cache list' and 'cache refresh --local' need an admin session.",
	}
	cmd.AddCommand(newAdminUsersCmd(app))
	cmd.AddCommand(newAdminCacheCmd(app))
	cmd.AddCommand(newAdminTokenCmd(app))
	rootCmd.AddCommand(cmd)
}

// adminClient checks the role for op and returns the backend client.
func adminClient(ctx context.Context, app *App, op security.OperationType) (*api.Client, error) {
	if _, err := app.Authorize(ctx, op); err != nil {
		return nil, err
	}
	return app.Client()
}

func newAdminUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			client, err := adminClient(ctx, app, security.OpListUsers)
			if err != nil {
				return err
			}
			users, err := client.ListUsers(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(users)
			}

			table := NewTable(output, "ID", "USERNAME", "ROLE", "STATUS", "LAST LOGIN")
			for _, u := range users {
				status := output.Green("active")
				if !u.Active {
					status = output.Red("disabled")
				}
				last := "-"
				if !u.LastLogin.IsZero() {
					last = u.LastLogin.In(utils.IndiaLocation).Format("2006-01-02 15:04")
				}
				table.AddRow(u.ID, u.Username, string(u.Role), status, last)
			}
			table.Render()
			return nil
		},
	})

	for _, active := range []bool{true, false} {
		cmd.AddCommand(newSetUserActiveCmd(app, active))
	}
	return cmd
}

func newSetUserActiveCmd(app *App, active bool) *cobra.Command {
	use, short := "enable <user-id>", "Enable a user"
	if !active {
		use, short = "disable <user-id>", "Disable a user"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			userID := args[0]
			if err := security.ValidateUserID(userID); err != nil {
				return err
			}
			client, err := adminClient(ctx, app, security.OpToggleUser)
			if err != nil {
				return err
			}
			user, err := client.SetUserActive(ctx, userID, active)
			_ = app.Audit.LogAdmin(ctx, security.AuditUserToggled, userID, map[string]interface{}{"active": active}, err)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(user)
			}
			state := "enabled"
			if !user.Active {
				state = "disabled"
			}
			output.Success("✓ User %s (%s) %s", user.Username, user.ID, state)
			return nil
		},
	}
}

func newAdminCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Backend and local sample caches",
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the backend to refresh its cache, or clear the local sample cache with --local",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			local, _ := cmd.Flags().GetBool("local")
			if local {
				return clearLocalCache(ctx, app, output)
			}

			indexStr, _ := cmd.Flags().GetString("index")
			index, err := security.ValidateIndex(indexStr)
			if err != nil {
				return err
			}
			client, err := adminClient(ctx, app, security.OpRefreshCache)
			if err != nil {
				return err
			}
			res, err := client.RefreshCache(ctx, index)
			_ = app.Audit.LogAdmin(ctx, security.AuditCacheRefreshed, string(index), nil, err)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("✓ Backend cache refreshed for %s: %d entries (%s)", index, res.Refreshed, res.Status)
			if res.Message != "" {
				output.Dim("%s", res.Message)
			}
			return nil
		},
	}
	refresh.Flags().Bool("local", false, "clear the local SQLite sample cache instead")
	refresh.Flags().String("index", app.Config.Dashboard.Index, "index to refresh on the backend")
	cmd.AddCommand(refresh)

	list := &cobra.Command{
		Use:   "list",
		Short: "List sample sets held in the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st := app.Store()
			if st == nil {
				output.Warning("Local sample cache is disabled")
				return nil
			}
			indexStr, _ := cmd.Flags().GetString("index")
			limit, _ := cmd.Flags().GetInt("limit")
			filter := store.SetFilter{Limit: limit}
			if indexStr != "" {
				index, err := security.ValidateIndex(indexStr)
				if err != nil {
					return err
				}
				filter.Index = index
			}
			sets, err := st.ListSets(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sets)
			}
			if len(sets) == 0 {
				output.Dim("Local sample cache is empty")
				return nil
			}
			table := NewTable(output, "DATE", "INDEX", "EXPIRY", "SOURCE", "SAMPLES", "FETCHED")
			for _, s := range sets {
				table.AddRow(s.Query.DateString(), string(s.Query.Index), orDash(s.Query.Expiry), string(s.Query.Source),
					strconv.Itoa(s.SampleCount), s.FetchedAt.In(utils.IndiaLocation).Format("2006-01-02 15:04"))
			}
			table.Render()
			return nil
		},
	}
	list.Flags().String("index", "", "only this index")
	list.Flags().Int("limit", 50, "maximum rows")
	cmd.AddCommand(list)

	return cmd
}

func clearLocalCache(ctx context.Context, app *App, output *Output) error {
	st := app.Store()
	if st == nil {
		output.Warning("Local sample cache is disabled")
		return nil
	}
	n, err := st.PurgeAll(ctx)
	if err != nil {
		return err
	}
	if output.IsJSON() {
		return output.JSON(map[string]int64{"purged": n})
	}
	output.Success("✓ Cleared %d cached sample sets", n)
	return nil
}

func newAdminTokenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "API access tokens",
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate an API access token for a user",
		Example: `  greeks admin token generate --user u-42 --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			userID, _ := cmd.Flags().GetString("user")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if err := security.ValidateUserID(userID); err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			client, err := adminClient(ctx, app, security.OpGenerateToken)
			if err != nil {
				return err
			}
			tok, err := client.GenerateToken(ctx, userID, ttl)
			_ = app.Audit.LogAdmin(ctx, security.AuditTokenGenerated, userID, map[string]interface{}{"ttl": ttl.String()}, err)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(tok)
			}
			output.Success("✓ Token for %s", tok.UserID)
			output.Println(tok.Token)
			output.Dim("Expires %s. It is shown only once.", tok.ExpiresAt.In(utils.IndiaLocation).Format(time.RFC1123))
			return nil
		},
	}
	generate.Flags().String("user", "", "user id")
	generate.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = generate.MarkFlagRequired("user")
	cmd.AddCommand(generate)

	return cmd
}
