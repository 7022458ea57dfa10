// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup to ensure that configuration is loaded and
// available to all other packages.
func InitConfig() {
	// --- Set Search Paths ---
	// Define the name of the config file to look for (without extension).
	viper.SetConfigName("scholarcites")
	// Add paths where Viper should look for the config file.
	viper.AddConfigPath(".")                   // Current working directory
	viper.AddConfigPath("/etc/scholarcites/")  // System-wide configuration
	viper.AddConfigPath("$HOME/.scholarcites") // User-specific configuration

	// --- Set Defaults ---
	// Set sensible defaults for key configuration parameters. These will be used
	// if the values are not provided in a config file or via environment variables.
	viper.SetDefault("scholar.active", true)
	viper.SetDefault("scholar.fetch_timeout", "168h")
	viper.SetDefault("scholar.max_entries_per_batch", 10)
	viper.SetDefault("scholar.pause_min", "10s")
	viper.SetDefault("scholar.pause_max", "60s")
	viper.SetDefault("scholar.author_prefetch", true)
	viper.SetDefault("scholar.headless_fallback", true)
	viper.SetDefault("scholar.request_timeout", "30s")
	viper.SetDefault("scholar.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")

	viper.SetDefault("proxy.enabled", false)
	viper.SetDefault("proxy.urls", []string{})
	viper.SetDefault("proxy.rotations", 3)
	viper.SetDefault("proxy.per_path_rate", "10s")
	viper.SetDefault("proxy.burst", 1)

	viper.SetDefault("cache.path", "google_scholar_cache.yaml")
	viper.SetDefault("bibliography.path", "publications.yaml")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8077)
	viper.SetDefault("server.refresh_interval", "0s")

	viper.SetDefault("logging.development", true)

	// --- Environment Variables ---
	// Enable Viper to read environment variables.
	viper.SetEnvPrefix("SCHOLAR") // e.g., SCHOLAR_SERVER_PORT=9090
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// --- Read Config File ---
	// Attempt to read the configuration file.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; this is not a fatal error if we can proceed
			// with defaults and environment variables.
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			// A real error occurred while parsing the config file.
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
