package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; the first one that loads wins.
var envFiles = []string{".env", ".env.local"}

// loadEnvFile loads KEY=VALUE pairs from the first readable env file. Variables
// already present in the process environment are never overridden.
func loadEnvFile() {
	for _, name := range envFiles {
		if err := godotenv.Load(name); err == nil {
			slog.Debug("Loaded environment variables", "path", name)
			return
		}
	}
}
