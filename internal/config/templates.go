package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Greeks Dashboard Configuration

[backend]
# Analytics backend publishing raw option Greeks
url = "http://localhost:8000"
timeout = "15s"
max_retries = 3
# Outbound requests per second and burst
rate_limit = 5.0
burst = 5
# Consecutive failures before the circuit opens, and how long it stays open
breaker_threshold = 5
breaker_cooldown = "30s"

[dashboard]
# NIFTY, BANKNIFTY, FINNIFTY, MIDCPNIFTY, SENSEX
index = "NIFTY"
# Expiry symbol as published by the backend; empty picks the nearest
expiry = ""
# live or historical
source = "live"
# Rebase every metric against the first sample of the day
baseline = false
# Today's grid: "full" keeps 09:15-15:30, "now" stops at the current minute
truncate = "full"
poll_interval = "1m"

[session]
# Log out after this much inactivity
idle_timeout = "30m"
# Warn when less than this remains
warn_before = "2m"
# Keep the session in the encrypted vault between runs
persist = true

[server]
host = "127.0.0.1"
port = 8080
read_timeout = "15s"
write_timeout = "30s"
shutdown_timeout = "10s"

[cache]
# memory or redis
backend = "memory"
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0
live_ttl = "30s"
closed_ttl = "24h"

[store]
# SQLite cache of raw samples for closed trading days
enabled = true
path = "samples.db"
retention_days = 30

[export]
# asc or desc (newest first)
order = "desc"
precision = 2
include_empty = false
dir = "."

[logging]
level = "info"
# Empty writes to logs/greeks.log in this directory
file = ""
max_size_mb = 50
max_backups = 5
max_age_days = 14
console = true
audit = true

[ui]
color_enabled = true
time_format = "15:04"

[notify]
# Alerts raised by 'greeks watch' on trend flips and session expiry
enabled = true
level = "all"              # all, trend_only, errors_only
bell = true
webhook_url = ""           # optional JSON POST target
`

const credentialsTemplate = `# Greeks Dashboard Credentials
# Keep this file private (chmod 600). Environment variables
# GREEKS_USERNAME and GREEKS_PASSWORD take precedence.

[backend]
username = ""
password = ""
`

func writeTemplate(configDir, filename, content string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, filename)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing %s template: %w", filename, err)
	}

	return nil
}
