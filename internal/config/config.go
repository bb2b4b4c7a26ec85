package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/amaumene/torrnarr/internal/proxy"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Paths
	DataDir       string // where downloaded payloads land
	ResumeDataDir string // one resume blob per session identifier
	DatabaseFile  string // $CONFIG_DIR/torrnarr.db

	// Engine
	DownloadRateLimit int64 // bytes/s, 0 = unlimited
	UploadRateLimit   int64 // bytes/s, 0 = unlimited

	// Proxy preferences for the engine transport
	Proxy proxy.Preferences

	// Snapshots and sweeps
	SnapshotIntervalMinutes int // cadence of periodic resume-data snapshots
	StalledTimeoutMinutes   int // minutes without a record update before a downloading torrent is nudged

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("SNAPSHOT_INTERVAL_MINUTES", 5)
	viper.SetDefault("STALLED_TIMEOUT_MINUTES", 30)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PROXY_MODE", proxy.ModeAuto)
	viper.SetDefault("PROXY_TYPE", "http")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "torrnarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	dataDir := viper.GetString("DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(configDir, "downloads")
	}
	resumeDataDir := viper.GetString("RESUME_DATA_DIR")
	if resumeDataDir == "" {
		resumeDataDir = filepath.Join(configDir, "resume_data")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	config := &Config{
		// Paths
		DataDir:       dataDir,
		ResumeDataDir: resumeDataDir,
		DatabaseFile:  filepath.Join(configDir, "torrnarr.db"),

		// Engine
		DownloadRateLimit: viper.GetInt64("DOWNLOAD_RATE_LIMIT"),
		UploadRateLimit:   viper.GetInt64("UPLOAD_RATE_LIMIT"),

		// Proxy
		Proxy: proxy.Preferences{
			UseProxy: viper.GetBool("USE_PROXY"),
			Mode:     viper.GetString("PROXY_MODE"),
			Type:     viper.GetString("PROXY_TYPE"),
			Hostname: viper.GetString("PROXY_HOSTNAME"),
			Port:     viper.GetInt("PROXY_PORT"),
			Username: viper.GetString("PROXY_USERNAME"),
			Password: viper.GetString("PROXY_PASSWORD"),
		},

		// Snapshots and sweeps
		SnapshotIntervalMinutes: viper.GetInt("SNAPSHOT_INTERVAL_MINUTES"),
		StalledTimeoutMinutes:   viper.GetInt("STALLED_TIMEOUT_MINUTES"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	return config, nil
}
