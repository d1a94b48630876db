package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v6"
	"google.golang.org/api/option"
)

// Config selects between real Cloud Storage and a local emulator such as
// fake-gcs-server. Leaving Mode empty with EmulatorHost set picks the
// emulator.
type Config struct {
	// Mode is "", "gcs" or "gcs_emulator".
	Mode         string `env:"OBJECT_STORAGE_MODE"`
	EmulatorHost string `env:"STORAGE_EMULATOR_HOST"`

	// CredentialsJSON wins over CredentialsFile. The file variable may also
	// hold inline JSON.
	CredentialsJSON string `env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

const (
	modeGCS      = "gcs"
	modeEmulator = "gcs_emulator"
)

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("object storage config: %w", err)
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.EmulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	return cfg, cfg.Validate()
}

func (c Config) Emulated() bool {
	return c.Mode == modeEmulator || (c.Mode == "" && c.EmulatorHost != "")
}

func (c Config) Validate() error {
	switch c.Mode {
	case "", modeGCS, modeEmulator:
	default:
		return fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", c.Mode, modeGCS, modeEmulator)
	}
	if !c.Emulated() {
		return nil
	}
	if c.EmulatorHost == "" {
		return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", modeEmulator)
	}
	if u, err := url.Parse(c.EmulatorHost); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", c.EmulatorHost)
	}
	return nil
}

// clientOptions falls back to application default credentials when no
// credentials are configured.
func (c Config) clientOptions() []option.ClientOption {
	if c.Emulated() {
		return []option.ClientOption{option.WithoutAuthentication()}
	}
	creds := strings.TrimSpace(c.CredentialsJSON)
	if creds == "" {
		creds = strings.TrimSpace(c.CredentialsFile)
	}
	switch {
	case creds == "":
		return nil
	case strings.HasPrefix(creds, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(creds)}
	}
}
