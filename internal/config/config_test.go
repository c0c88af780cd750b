package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
server:
  name: fleet-server
database:
  dsn: postgres://localhost/fleet
jwt:
  secret: secret
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.Fleet.RouterIdentitySource)
	assert.Equal(t, 30, cfg.Fleet.CertificatesAutoRenewDaysBefore)
	assert.Equal(t, 28, cfg.Fleet.VPNSubnetPrefixBits)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTokenTTL)
}

func TestLoadRejectsBadIdentitySource(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
fleet:
  router_identity_source: mac
`))
	assert.Error(t, err)
}

func TestLoadAcceptsIMSISource(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
fleet:
  router_identity_source: imsi
`))
	require.NoError(t, err)
	assert.Equal(t, "imsi", cfg.Fleet.RouterIdentitySource)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/fleet")
	t.Setenv("EXTERNAL_URL", "https://fleet.example.com")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/fleet", cfg.Database.DSN)
	assert.Equal(t, "https://fleet.example.com", cfg.Fleet.ExternalURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
