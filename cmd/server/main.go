// Command server runs the Relo realtime messaging and notification backend.
//
//	server serve      start the HTTP and websocket server
//	server migrate    create or update the Postgres schema
//
// Settings come from the environment or a local .env file: DB_DSN,
// JWT_SECRET, REDIS_ADDR, ADDR, ACCESS_TOKEN_TTL, REFRESH_TOKEN_TTL,
// LOG_LEVEL, LOG_FORMAT, ALLOWED_ORIGINS and BCRYPT_COST.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
