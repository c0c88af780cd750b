package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Fleet      FleetConfig      `yaml:"fleet"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FleetConfig represents device communication engine configuration
type FleetConfig struct {
	// RouterIdentitySource selects the authoritative router identifier,
	// either "serial" or "imsi".
	RouterIdentitySource string `yaml:"router_identity_source"`

	// CertificateSweepSchedule is the cron expression for the certificate
	// expiry sweep. Empty disables the sweep.
	CertificateSweepSchedule string `yaml:"certificate_sweep_schedule"`

	// CertificatesAutoRenewDaysBefore is the default renewal window for
	// device-type certificate policies that do not set their own.
	CertificatesAutoRenewDaysBefore int `yaml:"certificates_auto_renew_days_before"`

	// VPNLicensed reports whether the installation carries a VPN license.
	// VPN availability on a device type additionally requires a configured
	// VPN certificate type.
	VPNLicensed bool `yaml:"vpn_licensed"`

	// FirmwareStorageDir is where firmware artifacts are kept for the
	// download endpoint.
	FirmwareStorageDir string `yaml:"firmware_storage_dir"`

	// ConfigTemplateDir holds the named config template bodies rendered
	// for device pushes.
	ConfigTemplateDir string `yaml:"config_template_dir"`

	// ExternalURL is the base URL devices can reach this server on,
	// used when building firmware download links.
	ExternalURL string `yaml:"external_url"`

	// VPNSubnetPrefixBits is the per-device virtual subnet prefix length
	// used to derive endpoint device addresses.
	VPNSubnetPrefixBits int `yaml:"vpn_subnet_prefix_bits"`
}

// EncryptionConfig represents secret/certificate material encryption configuration
type EncryptionConfig struct {
	// Key is the hex-encoded 32-byte AES key used for stored secrets and
	// certificate material.
	Key string `yaml:"key"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		c.Encryption.Key = key
	}

	if externalURL := os.Getenv("EXTERNAL_URL"); externalURL != "" {
		c.Fleet.ExternalURL = externalURL
	}
}

func (c *Config) applyDefaults() {
	if c.Fleet.RouterIdentitySource == "" {
		c.Fleet.RouterIdentitySource = "serial"
	}
	if c.Fleet.CertificatesAutoRenewDaysBefore == 0 {
		c.Fleet.CertificatesAutoRenewDaysBefore = 30
	}
	if c.Fleet.VPNSubnetPrefixBits == 0 {
		c.Fleet.VPNSubnetPrefixBits = 28
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}
}

func (c *Config) validate() error {
	switch c.Fleet.RouterIdentitySource {
	case "serial", "imsi":
	default:
		return fmt.Errorf("invalid router_identity_source: %s", c.Fleet.RouterIdentitySource)
	}
	return nil
}
