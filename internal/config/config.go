package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TLSIdentity points at the server certificate material.
type TLSIdentity struct {
	ServerCert string `toml:"server_cert"`
	ServerKey  string `toml:"server_key"`
}

// Server is the RPC listener block.
type Server struct {
	BindAddr string       `toml:"bind_addr"`
	UseTLS   bool         `toml:"use_tls"`
	UseQUIC  bool         `toml:"use_quic"`
	TLS      *TLSIdentity `toml:"tls"`
}

// Web is the optional management web server block. Opaque to the RPC
// core; carried through for the web frontend.
type Web struct {
	Enabled   bool   `toml:"enabled"`
	BindAddr  string `toml:"bind_addr"`
	SecretKey string `toml:"secret_key"`

	GoogleAPIClientID string `toml:"google_api_client_id"`
	GoogleAPISecret   string `toml:"google_api_secret"`
}

// Database holds the connection string plus optional TLS identities.
type Database struct {
	ConnectionInfo string `toml:"connection_info"`

	UseTLS   bool   `toml:"use_tls"`
	ServerCA string `toml:"server_ca"`
	ClientID string `toml:"client_id"`
}

// Config is the full server configuration.
type Config struct {
	Server   Server   `toml:"server"`
	Web      *Web     `toml:"web"`
	Database Database `toml:"database"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates TOML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = ":1234"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.UseTLS || c.Server.UseQUIC {
		if c.Server.TLS == nil || c.Server.TLS.ServerCert == "" || c.Server.TLS.ServerKey == "" {
			return fmt.Errorf("tls enabled but [server.tls] server_cert/server_key missing")
		}
	}
	if c.Database.ConnectionInfo == "" {
		return fmt.Errorf("database connection_info missing")
	}
	if c.Web != nil && c.Web.Enabled && c.Web.BindAddr == "" {
		return fmt.Errorf("web server enabled but bind_addr missing")
	}
	return nil
}
