/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cpsconfig provides the YAML-backed configuration cpsctl loads
// before dispatching to a radio, plus the CLI-flag-override merge used by
// its root command.
package cpsconfig

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// Config specifies the options cpsctl needs to reach and program a radio.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	MototrboTimeout time.Duration `yaml:"mototrbo_timeout"`
	TetraTimeout    time.Duration `yaml:"tetra_timeout"`
	LTETimeout      time.Duration `yaml:"lte_timeout"`

	// DefaultFamily hints the dispatcher at a known radio family, letting
	// a serial-only family fail fast instead of being network-probed.
	DefaultFamily string `yaml:"default_family"`

	// MinimumFirmware rejects a radio reporting an older firmware version.
	MinimumFirmware string `yaml:"minimum_firmware"`

	LTEPassword string `yaml:"lte_password"`
	InsecureTLS bool   `yaml:"insecure_tls"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// DefaultConfig returns Config initialized with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:            8002,
		MototrboTimeout: 5 * time.Second,
		TetraTimeout:    5 * time.Second,
		LTETimeout:      30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate reports the first invalid field found, matching
// BackoffConfig.Validate's one-error-at-a-time style.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must be specified")
	}
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive")
	}
	if c.MototrboTimeout <= 0 {
		return fmt.Errorf("mototrbo_timeout must be greater than zero")
	}
	if c.TetraTimeout <= 0 {
		return fmt.Errorf("tetra_timeout must be greater than zero")
	}
	if c.LTETimeout <= 0 {
		return fmt.Errorf("lte_timeout must be greater than zero")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}

// ReadConfig reads config from the file at path.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PrepareConfig builds the final config from defaults, an optional
// on-disk config file, and CLI flag overrides (named in setFlags),
// warning whenever a flag overrides a config-file value, then validates
// the result.
func PrepareConfig(cfgPath, host string, port int, defaultFamily, minimumFirmware, ltePassword string, setFlags map[string]bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if setFlags["host"] {
		warn("host")
		cfg.Host = host
	}
	if setFlags["port"] {
		warn("port")
		cfg.Port = port
	}
	if setFlags["defaultFamily"] {
		warn("defaultFamily")
		cfg.DefaultFamily = defaultFamily
	}
	if setFlags["minimumFirmware"] {
		warn("minimumFirmware")
		cfg.MinimumFirmware = minimumFirmware
	}
	if setFlags["ltePassword"] {
		warn("ltePassword")
		cfg.LTEPassword = ltePassword
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	log.Debugf("config: %+v", cfg)
	return cfg, nil
}
