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

var verifyAgainst string

func init() {
	verifyCmd.Flags().StringVar(&verifyAgainst, "against", "", "path to the codeplug image to verify against")
	if err := verifyCmd.MarkFlagRequired("against"); err != nil {
		panic(err)
	}
	RootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "verify a radio's codeplug matches an expected image",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fail("%v", err)
		}
		setupLogging(cfg)

		expected, err := os.ReadFile(verifyAgainst)
		if err != nil {
			fail("reading %s: %v", verifyAgainst, err)
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
		fmt.Println(infoString, "verifying codeplug on", id.Model)

		ok, err := eng.Verify(expected, func(fraction float64) {
			progressLine("verifying... %.0f%%\n", fraction*100)
		})
		if err != nil {
			fail("%v", err)
		}
		if !ok {
			fmt.Println(failString, "codeplug does not match")
			os.Exit(1)
		}
		fmt.Println(okString, "codeplug matches")
	},
}
