// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the aggregate manager configuration.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// OpenNaaS holds the settings of the upstream OpenNaaS controller and of the
// reconciliation and reservation machinery built around it.
type OpenNaaS struct {
	// ServerAddress is the host of the OpenNaaS controller.
	ServerAddress string `yaml:"server_address" validate:"required"`
	// ServerPort is the TCP port of the OpenNaaS controller.
	ServerPort int `yaml:"server_port" validate:"required,min=1,max=65535"`
	// User and Password are the basic-auth credentials toward the controller.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// DBDir is the directory holding the sqlite database file.
	DBDir string `yaml:"db_dir" validate:"required"`
	// ReservationTimeout is the default reservation lifetime in minutes,
	// applied when a reservation carries no explicit end time.
	ReservationTimeout int `yaml:"reservation_timeout" validate:"min=1"`
	// UpdateTimeout is the interval in seconds between reconciler steps.
	UpdateTimeout int `yaml:"update_timeout" validate:"min=1"`
	// UpdateStep is the maximum number of inventory items written per
	// reconciler update step.
	UpdateStep int `yaml:"update_step" validate:"min=1"`
	// CheckExpireTimeout is the interval in seconds between expiration sweeps.
	CheckExpireTimeout int `yaml:"check_expire_timeout" validate:"min=1"`
	// CheckCredentials enables client credential verification in the GENI
	// delegate. The core does not read it.
	CheckCredentials bool `yaml:"check_credentials"`
}

// Config is the top-level daemon configuration.
type Config struct {
	OpenNaaS OpenNaaS `yaml:"opennaas"`
	// ListenAddress is the bind address of the ops HTTP server.
	ListenAddress string `yaml:"listen_address" validate:"required"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns a configuration with every tunable at its default value.
// Required connection settings (server address, db dir) stay empty and must
// come from the configuration file.
func Default() *Config {
	return &Config{
		OpenNaaS: OpenNaaS{
			ServerPort:         8888,
			ReservationTimeout: 30,
			UpdateTimeout:      30,
			UpdateStep:         100,
			CheckExpireTimeout: 60,
		},
		ListenAddress: ":8080",
		LogLevel:      "info",
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// ReservationTTL is the default reservation lifetime.
func (o OpenNaaS) ReservationTTL() time.Duration {
	return time.Duration(o.ReservationTimeout) * time.Minute
}

// UpdateInterval is the pacing of the reconciler steps.
func (o OpenNaaS) UpdateInterval() time.Duration {
	return time.Duration(o.UpdateTimeout) * time.Second
}

// ExpireInterval is the pacing of the expiration sweeps.
func (o OpenNaaS) ExpireInterval() time.Duration {
	return time.Duration(o.CheckExpireTimeout) * time.Second
}
