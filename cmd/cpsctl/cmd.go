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

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radiocps/cpscore/cpsconfig"
)

// RootCmd is cpsctl's entry point.
var RootCmd = &cobra.Command{
	Use:   "cpsctl",
	Short: "programming client for MOTOTRBO, LTE/PBB and TETRA radios",
}

var (
	cfgPath         string
	host            string
	port            int
	defaultFamily   string
	minimumFirmware string
	ltePassword     string
	logFile         string
	logLevel        string
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a cpsctl YAML config file")
	RootCmd.PersistentFlags().StringVar(&host, "host", "", "radio host or IP address")
	RootCmd.PersistentFlags().IntVar(&port, "port", 0, "radio port (protocol default if unset)")
	RootCmd.PersistentFlags().StringVar(&defaultFamily, "family", "", "known radio family, skips network probing of serial-only families")
	RootCmd.PersistentFlags().StringVar(&minimumFirmware, "minimum-firmware", "", "reject radios reporting an older firmware version")
	RootCmd.PersistentFlags().StringVar(&ltePassword, "lte-password", "", "password for the LTE/PBB /password endpoint")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "rotate logs to this file instead of stderr")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// loadConfig merges defaults, an optional config file, and whichever
// persistent flags were explicitly set on cmd.
func loadConfig(cmd *cobra.Command) (*cpsconfig.Config, error) {
	setFlags := map[string]bool{
		"host":            cmd.Flags().Changed("host"),
		"port":            cmd.Flags().Changed("port"),
		"defaultFamily":   cmd.Flags().Changed("family"),
		"minimumFirmware": cmd.Flags().Changed("minimum-firmware"),
		"ltePassword":     cmd.Flags().Changed("lte-password"),
	}
	cfg, err := cpsconfig.PrepareConfig(cfgPath, host, port, defaultFamily, minimumFirmware, ltePassword, setFlags)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func setupLogging(cfg *cpsconfig.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var (
	okString   = color.GreenString("[OK]")
	infoString = color.GreenString("[INFO]")
	warnString = color.YellowString("[WARN]")
	failString = color.RedString("[FAIL]")
)

// progressLine overwrites the current terminal line with a progress
// update; it's a no-op when stdout isn't a terminal.
func progressLine(format string, args ...interface{}) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	fmt.Printf("[1000D")
	fmt.Printf(format, args...)
}

func fail(format string, args ...interface{}) {
	fmt.Println(failString, fmt.Sprintf(format, args...))
	os.Exit(1)
}
