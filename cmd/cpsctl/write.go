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

var writeIn string

func init() {
	writeCmd.Flags().StringVar(&writeIn, "in", "", "path to a codeplug image to write")
	if err := writeCmd.MarkFlagRequired("in"); err != nil {
		panic(err)
	}
	RootCmd.AddCommand(writeCmd)
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "write a codeplug image to a radio",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail("%v", err)
		}
		setupLogging(cfg)

		data, err := os.ReadFile(writeIn)
		if err != nil {
			fail("reading %s: %v", writeIn, err)
		}

		eng, id, err := dispatch.Detect(cfg.Host, dispatch.Options{
			LTEPassword:     cfg.LTEPassword,
			KnownFamily:     cfg.DefaultFamily,
			MinimumFirmware: cfg.MinimumFirmware,
		})
		if err != nil {
			fail("%v", err)
		}
		defer eng.Close()
		fmt.Println(infoString, "writing codeplug to", id.Model)

		err = eng.WriteCodeplug(data, func(fraction float64) {
			progressLine("writing... %.0f%%\n", fraction*100)
		})
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(okString, "wrote", len(data), "bytes")
	},
}
