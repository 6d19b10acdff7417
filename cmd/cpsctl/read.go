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

	"github.com/spf13/cobra"

	"github.com/radiocps/cpscore/dispatch"
)

var readOut string

func init() {
	readCmd.Flags().StringVar(&readOut, "out", "", "path to write the codeplug image to")
	if err := readCmd.MarkFlagRequired("out"); err != nil {
		panic(err)
	}
	RootCmd.AddCommand(readCmd)
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "read the current codeplug image from a radio",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail("%v", err)
		}
		setupLogging(cfg)

		eng, id, err := dispatch.Detect(cfg.Host, dispatch.Options{
			LTEPassword:     cfg.LTEPassword,
			KnownFamily:     cfg.DefaultFamily,
			MinimumFirmware: cfg.MinimumFirmware,
		})
		if err != nil {
			fail("%v", err)
		}
		defer eng.Close()
		fmt.Println(infoString, "reading codeplug from", id.Model)

		data, err := eng.ReadCodeplug(func(fraction float64) {
			progressLine("reading... %.0f%%\n", fraction*100)
		})
		if err != nil {
			fail("%v", err)
		}

		if err := os.WriteFile(readOut, data, 0o600); err != nil {
			fail("writing %s: %v", readOut, err)
		}
		fmt.Println(okString, "wrote", len(data), "bytes to", readOut)
	},
}
