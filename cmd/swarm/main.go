// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"

	"github.com/spf13/cobra"

	swarmconfig "github.com/AleutianAI/AleutianSwarm/services/swarm/config"
)

var (
	cfgPath string
	cfg     swarmconfig.Config

	rootCmd = &cobra.Command{
		Use:   "swarm",
		Short: "Swarm coordinates autonomous software engineering agents",
		Long: `Swarm is the orchestration core for a fleet of autonomous coding
agents: it analyzes task dependency graphs, rebalances priorities,
drives the task and change-request lifecycle, and coordinates
execution across isolated workspaces.`,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "swarm.yaml",
		"path to the configuration file (optional)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loaded, err := swarmconfig.Load(cfgPath)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		cfg = loaded
	}
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}
