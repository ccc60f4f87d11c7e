// Copyright 2024 The tydb Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Binary tydb reconstructs a normalized, cross-unit type database from
// the DWARF debug information of an ELF executable.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	log "github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/opendebug/tydb/config"
	"github.com/opendebug/tydb/tygen"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tydb",
		Short: "tydb extracts a deduplicated type database from DWARF debug info",
	}
	// bridge glog's flags (-v, -logtostderr, ...) onto the CLI
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	cfgFile := rootCmd.PersistentFlags().String("config", "tydb.toml", "Path to the TOML config file.")

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Build the project and extract the type database from its ELF output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			catalog, err := tygen.Run(cfg)
			if err != nil {
				return err
			}
			log.Infof("extraction finished: %d types, %d symbols", len(catalog.Types), len(catalog.Symbols))
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.AddCommand(extractCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
