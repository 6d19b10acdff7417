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

package cpsconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig("/does/not/exist")
	require.Error(t, err)
}

func TestReadConfigDefaults(t *testing.T) {
	f, err := os.CreateTemp("", "cpsctl")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	cfg, err := ReadConfig(f.Name())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestReadConfig(t *testing.T) {
	f, err := os.CreateTemp("", "cpsctl")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	_, err = f.Write([]byte(`host: 10.0.0.5
port: 8002
mototrbo_timeout: 3s
tetra_timeout: 4s
lte_timeout: 20s
default_family: xpr
minimum_firmware: 2.0.0
lte_password: hunter2
insecure_tls: true
log_level: debug
log_file: /var/log/cpsctl.log
`))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := ReadConfig(f.Name())
	require.NoError(t, err)
	require.Equal(t, &Config{
		Host:            "10.0.0.5",
		Port:            8002,
		MototrboTimeout: 3 * time.Second,
		TetraTimeout:    4 * time.Second,
		LTETimeout:      20 * time.Second,
		DefaultFamily:   "xpr",
		MinimumFirmware: "2.0.0",
		LTEPassword:     "hunter2",
		InsecureTLS:     true,
		LogLevel:        "debug",
		LogFile:         "/var/log/cpsctl.log",
	}, cfg)
}

func TestValidateRejectsMissingHost(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "host")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "10.0.0.5"
	cfg.LogLevel = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_level")
}

func TestPrepareConfigOverridesFromFlags(t *testing.T) {
	cfg, err := PrepareConfig("", "10.0.0.5", 8002, "xpr", "2.0.0", "hunter2", map[string]bool{
		"host":            true,
		"port":            true,
		"defaultFamily":   true,
		"minimumFirmware": true,
		"ltePassword":     true,
	})
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", cfg.Host)
	require.Equal(t, "xpr", cfg.DefaultFamily)
	require.Equal(t, "2.0.0", cfg.MinimumFirmware)
	require.Equal(t, "hunter2", cfg.LTEPassword)
}

func TestPrepareConfigRejectsMissingHost(t *testing.T) {
	_, err := PrepareConfig("", "", 0, "", "", "", map[string]bool{})
	require.Error(t, err)
}
