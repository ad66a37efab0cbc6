package collab

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvApiKey, "devkey")
	t.Setenv(EnvApiSecret, "devsecret")
	t.Setenv(EnvAdminKey, "")
	t.Setenv(EnvAdminSecret, "")

	config, err := LoadConfig()
	assert.Equal(t, err, nil)
	assert.Equal(t, config.ApiKey, "devkey")
	// the admin pair defaults to the api pair
	assert.Equal(t, config.AdminKey, "devkey")
	assert.Equal(t, config.AdminSecret, "devsecret")

	t.Setenv(EnvAdminKey, "adminkey")
	t.Setenv(EnvAdminSecret, "adminsecret")
	config, err = LoadConfig()
	assert.Equal(t, err, nil)
	assert.Equal(t, config.AdminKey, "adminkey")
	assert.Equal(t, config.AdminSecret, "adminsecret")
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	t.Setenv(EnvApiKey, "")
	t.Setenv(EnvApiSecret, "")

	_, err := LoadConfig()
	var configErr *ConfigurationError
	assert.Equal(t, errors.As(err, &configErr), true)
	assert.Equal(t, configErr.Key, EnvApiKey)
}
