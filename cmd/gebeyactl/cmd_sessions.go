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
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func runListSessions(cmd *cobra.Command, args []string) {
	url := fmt.Sprintf("%s/v1/sessions", getOrchestratorBaseURL())

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Failed to connect to orchestrator: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error: %s", resp.Status)
	}

	var result struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}

	if result.Count == 0 {
		fmt.Println("No active sessions found.")
		return
	}

	fmt.Printf("Active Sessions (%d):\n", result.Count)
	for _, id := range result.Sessions {
		fmt.Printf("  %s\n", id)
	}
}

func runShowSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s", getOrchestratorBaseURL(), sessionID)

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Failed to connect to orchestrator: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Fatalf("Session %s not found", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error: %s", resp.Status)
	}

	var pretty json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(pretty); err != nil {
		log.Fatalf("Failed to print session: %v", err)
	}
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s", getOrchestratorBaseURL(), sessionID)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		log.Fatalf("Failed to create delete request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to send delete request to orchestrator: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error: %s", resp.Status)
	}

	fmt.Printf("Successfully deleted session: %s\n", sessionID)
}
