package cli

import (
	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newExamplesCmd())
}

type helpEntry struct {
	cmd  string
	desc string
}

type helpCategory struct {
	name    string
	entries []helpEntry
}

var commandCategories = []helpCategory{
	{
		name: "Session",
		entries: []helpEntry{
			{"login", "Log in to the analytics backend"},
			{"logout", "Log out and clear the saved session"},
			{"status", "Session countdown and market status"},
		},
	},
	{
		name: "Series",
		entries: []helpEntry{
			{"series", "Per-minute net Greeks and Vega trend"},
			{"trend", "Latest trend and trend histogram"},
			{"watch", "Live polling view"},
			{"export", "CSV export"},
			{"expiries", "Expiries published for an index"},
		},
	},
	{
		name: "Service",
		entries: []helpEntry{
			{"serve", "HTTP service for the browser dashboard"},
		},
	},
	{
		name: "Admin",
		entries: []helpEntry{
			{"admin users list/enable/disable", "Manage users"},
			{"admin cache refresh [--local]", "Refresh backend or clear local cache"},
			{"admin cache list", "Sample sets in the local cache"},
			{"admin token generate", "Mint an API token"},
		},
	},
	{
		name: "Utilities",
		entries: []helpEntry{
			{"config show/path/validate", "Configuration"},
			{"commands", "This list"},
			{"examples", "Common workflows"},
			{"version", "Version information"},
		},
	},
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string][]string, len(commandCategories))
				for _, cat := range commandCategories {
					for _, e := range cat.entries {
						out[cat.name] = append(out[cat.name], e.cmd)
					}
				}
				return output.JSON(out)
			}

			for _, cat := range commandCategories {
				output.Bold(cat.name)
				for _, e := range cat.entries {
					output.Printf("  %-36s %s\n", e.cmd, output.DimText(e.desc))
				}
				output.Println()
			}
			output.Dim("Use 'greeks help <command>' for flags and details")
			return nil
		},
	}
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Morning check",
					commands: []string{
						"greeks login                          # start a session",
						"greeks expiries --index NIFTY         # pick an expiry",
						"greeks watch --index NIFTY --expiry 25JAN",
					},
				},
				{
					title: "Review a past day",
					commands: []string{
						"greeks series --date 2024-01-15 --baseline --limit 20",
						"greeks trend --date 2024-01-15",
						"greeks export --date 2024-01-15 --order asc",
					},
				},
				{
					title: "Browser dashboard",
					commands: []string{
						"greeks serve --port 8080",
						"curl -H 'Authorization: Bearer $TOKEN' 'localhost:8080/api/series?index=BANKNIFTY'",
					},
				},
				{
					title: "Admin",
					commands: []string{
						"greeks admin users list",
						"greeks admin cache refresh --index SENSEX",
						"greeks admin token generate --user u-42 --ttl 720h",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					output.Printf("  %s\n", c)
				}
				output.Println()
			}
			return nil
		},
	}
}
