package server

import (
	"crypto/tls"
	"time"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

const (
	defaultAddress = "0.0.0.0:8080"
	defaultTimeout = 30 * time.Second
)

// Config represents webhook server configuration
type Config struct {
	Address string        `yaml:"address" env:"SERVER_ADDRESS"`
	Timeout time.Duration `yaml:"timeout" env:"SERVER_TIMEOUT"`

	CertFilePath string `yaml:"cert_file_path" env:"CERT_FILE_PATH"`
	KeyFilePath  string `yaml:"key_file_path" env:"KEY_FILE_PATH"`
	EnableHTTPS  bool   `yaml:"enable_https" env:"SERVER_ENABLE_HTTPS"`

	// Requests per second allowed per service; 0 disables limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"SERVER_RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"SERVER_RATE_LIMIT_BURST"`

	Certificate tls.Certificate `yaml:"-"`
}

func (cfg *Config) PrepareAndValidate() error {
	cfg.Address = lang.Check(cfg.Address, defaultAddress)
	cfg.Timeout = lang.Check(cfg.Timeout, defaultTimeout)
	cfg.RateLimitBurst = lang.Check(cfg.RateLimitBurst, 10)

	if cfg.EnableHTTPS {
		if cfg.CertFilePath == "" || cfg.KeyFilePath == "" {
			return errm.New("cert_file_path and key_file_path must be set when enable_https is true")
		}

		cert, err := tls.LoadX509KeyPair(cfg.CertFilePath, cfg.KeyFilePath)
		if err != nil {
			return errm.Wrap(err, "failed to load certificate and key pair")
		}

		cfg.Certificate = cert
	}

	return nil
}
