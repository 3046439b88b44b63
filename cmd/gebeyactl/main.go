// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gebeyactl is the operator CLI for a running GebeyaKart
// orchestrator. It talks to the orchestrator's HTTP API for chatting,
// session administration, and knowledge base management.
//
// The orchestrator address comes from GEBEYA_ORCHESTRATOR_URL, falling
// back to http://localhost:12210.
package main

import (
	"fmt"
	"log"
	"os"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

const (
	defaultOrchestratorHost = "localhost"
	defaultOrchestratorPort = 12210
)

func getOrchestratorBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("GEBEYA_ORCHESTRATOR_URL"); url != "" {
		return url
	}
	// 2. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", defaultOrchestratorHost, defaultOrchestratorPort)
}
