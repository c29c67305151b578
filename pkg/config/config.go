package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cbodonnell/cuesync/pkg/network"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("failed to parse env: %v", err)
	}
	return nil
}

// TLSEnv is a certificate pair for a listener. Both files must be set to
// enable TLS.
type TLSEnv struct {
	CertFile string `env:"CUESYNC_TLS_CERT_FILE"`
	KeyFile  string `env:"CUESYNC_TLS_KEY_FILE"`
}

// TLS returns the listener TLS config, or nil when TLS is disabled.
func (e TLSEnv) TLS() (*network.TLSConfig, error) {
	if e.CertFile == "" && e.KeyFile == "" {
		return nil, nil
	}
	if e.CertFile == "" || e.KeyFile == "" {
		return nil, fmt.Errorf("CUESYNC_TLS_CERT_FILE and CUESYNC_TLS_KEY_FILE must be set together")
	}
	return &network.TLSConfig{CertFile: e.CertFile, KeyFile: e.KeyFile}, nil
}

// RelayEnv configures the relay server.
type RelayEnv struct {
	TLSEnv
}

// PeerEnv configures a headless table peer.
type PeerEnv struct {
	TLSEnv
	// RelayURL is the relay base, e.g. ws://localhost:8080
	RelayURL string `env:"CUESYNC_RELAY_URL" envDefault:"ws://localhost:8080"`
	TableID  string `env:"CUESYNC_TABLE_ID" envDefault:"main"`
	// DatabaseURL selects the Postgres repository
	DatabaseURL string `env:"CUESYNC_DATABASE_URL"`
	// SQLitePath selects the SQLite repository when DatabaseURL is unset
	SQLitePath   string        `env:"CUESYNC_SQLITE_PATH"`
	SaveInterval time.Duration `env:"CUESYNC_SAVE_INTERVAL" envDefault:"30s"`
}

// TableURL returns the websocket endpoint of the configured table.
func (e PeerEnv) TableURL() string {
	return fmt.Sprintf("%s/tables/%s/ws", e.RelayURL, e.TableID)
}
