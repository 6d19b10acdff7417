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

	"github.com/spf13/cobra"

	"github.com/radiocps/cpscore/dispatch"
)

func init() {
	RootCmd.AddCommand(identifyCmd)
}

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "detect the radio's protocol and print its identity",
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

		fmt.Println(okString, "identified radio")
		fmt.Printf("  model:        %s\n", id.Model)
		fmt.Printf("  serial:       %s\n", id.Serial)
		fmt.Printf("  firmware:     %s\n", id.Firmware)
		fmt.Printf("  codeplug id:  %s\n", id.CodeplugID)
		fmt.Printf("  radio family: %s\n", id.RadioFamily)
	},
}
