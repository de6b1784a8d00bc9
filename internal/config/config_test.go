package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range []string{"DATABASE_AUTO_MIGRATE", "PORT", "JWT_EXPIRY_HOURS"} {
		t.Setenv(key, "")
	}

	Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.False(t, viper.GetBool("server.auto_migrate"))
	assert.Equal(t, "8080", viper.GetString("server.port"))
	assert.Equal(t, 24, viper.GetInt("jwt.expiry_hours"))
}

func TestLoad_AutoMigrateFromEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("DATABASE_AUTO_MIGRATE", "true")

	Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.True(t, viper.GetBool("server.auto_migrate"))
}
