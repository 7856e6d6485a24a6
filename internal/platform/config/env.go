// Package config holds the environment overrides shared by the binaries.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ServerEnv is the QS_* environment for cmd/server. Non-empty values override
// the corresponding flag defaults.
type ServerEnv struct {
	Addr         string        `env:"QS_ADDR"`
	AdminAddr    string        `env:"QS_ADMIN_ADDR"`
	DataDir      string        `env:"QS_DATA_DIR"`
	TuningPath   string        `env:"QS_TUNING"`
	StoreBackend string        `env:"QS_STORE_BACKEND"`
	StoreDSN     string        `env:"QS_STORE_DSN"`
	StoreToken   string        `env:"QS_STORE_TOKEN"`
	StoreTimeout time.Duration `env:"QS_STORE_TIMEOUT" envDefault:"5s"`
	DisableLog   bool          `env:"QS_DISABLE_JOURNAL"`
	// EnableAdmin is "true"/"false"; empty defers to DeployEnv.
	EnableAdmin string `env:"QS_ENABLE_ADMIN_HTTP"`
	EnablePprof bool   `env:"QS_ENABLE_PPROF_HTTP"`
	DeployEnv   string `env:"DEPLOY_ENV"`

	Offsite OffsiteEnv
}

// OffsiteEnv configures the S3-compatible bucket journal files and snapshot
// exports are copied to. Empty Endpoint disables it.
type OffsiteEnv struct {
	Endpoint  string `env:"QS_OFFSITE_ENDPOINT"`
	Bucket    string `env:"QS_OFFSITE_BUCKET"`
	Region    string `env:"QS_OFFSITE_REGION" envDefault:"auto"`
	AccessKey string `env:"QS_OFFSITE_ACCESS_KEY_ID"`
	SecretKey string `env:"QS_OFFSITE_SECRET_ACCESS_KEY"`
	Prefix    string `env:"QS_OFFSITE_PREFIX"`
}

func (o OffsiteEnv) Enabled() bool { return o.Endpoint != "" }

// ClientEnv is the QS_* environment for the bot client.
type ClientEnv struct {
	URL      string `env:"QS_URL"`
	PlayerID string `env:"QS_PLAYER_ID"`
}

// Pick returns override when it is non-empty, else def.
func Pick(override, def string) string {
	if override != "" {
		return override
	}
	return def
}
