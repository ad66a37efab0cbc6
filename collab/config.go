package collab

import (
	"os"

	"github.com/golang/glog"

	"github.com/joho/godotenv"
)

// environment keys for the out-of-band credentials
const (
	EnvApiKey      = "LIVEKIT_API_KEY"
	EnvApiSecret   = "LIVEKIT_API_SECRET"
	EnvAdminKey    = "LIVEKIT_ADMIN_KEY"
	EnvAdminSecret = "LIVEKIT_ADMIN_SECRET"
)

// Config carries the service identity pair (token minting) and the admin
// pair (programmatic room administration). The admin pair falls back to
// the api pair, which is how single-keypair deployments run.
type Config struct {
	ApiKey      string
	ApiSecret   string
	AdminKey    string
	AdminSecret string
}

// LoadConfig reads a .env file if present, then the process environment.
// A missing api key or secret is a *ConfigurationError: flows that need
// credentials must not start without them.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// a .env file is optional
		glog.V(1).Infof("[config]no .env file: %s\n", err)
	}

	config := &Config{
		ApiKey:      os.Getenv(EnvApiKey),
		ApiSecret:   os.Getenv(EnvApiSecret),
		AdminKey:    os.Getenv(EnvAdminKey),
		AdminSecret: os.Getenv(EnvAdminSecret),
	}
	if config.ApiKey == "" {
		return nil, &ConfigurationError{Key: EnvApiKey}
	}
	if config.ApiSecret == "" {
		return nil, &ConfigurationError{Key: EnvApiSecret}
	}
	if config.AdminKey == "" {
		config.AdminKey = config.ApiKey
	}
	if config.AdminSecret == "" {
		config.AdminSecret = config.ApiSecret
	}
	return config, nil
}
