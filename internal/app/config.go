package app

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/maxbolgarin/errm"

	"github.com/maxbolgarin/hookflow/internal/config"
)

// LoadConfig reads configuration from the optional YAML file and the
// environment. Environment variables win over file values.
func LoadConfig(path string) (config.Config, error) {
	var cfg config.Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, errm.Wrap(err, "config file is not accessible")
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, errm.Wrap(err, "read config file")
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, errm.Wrap(err, "read config from environment")
	}
	return cfg, nil
}
