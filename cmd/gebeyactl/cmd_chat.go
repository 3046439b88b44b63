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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

var chatHTTPClient = &http.Client{Timeout: 3 * time.Minute}

func runAskCommand(cmd *cobra.Command, args []string) {
	message := strings.Join(args, " ")

	resp, err := sendChatMessage(message, "")
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Println(resp.Response)
	fmt.Printf("\n(session: %s, intent: %s)\n", resp.SessionID, resp.Intent)
}

func runChatCommand(cmd *cobra.Command, args []string) {
	sessionID := resumeSessionID

	fmt.Println("GebeyaKart chat. Type 'exit' or 'quit' to leave.")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		resp, err := sendChatMessage(line, sessionID)
		if err != nil {
			log.Printf("Error: %v", err)
			continue
		}
		sessionID = resp.SessionID

		fmt.Printf("\nGebeyaKart: %s\n\n", resp.Response)
		if showToolCalls {
			for _, call := range resp.ToolCalls {
				fmt.Printf("   [tool] %s\n", call.Tool)
			}
		}
	}

	if sessionID != "" {
		fmt.Printf("\nSession ID: %s (use --resume to continue later)\n", sessionID)
	}
}

func sendChatMessage(message, sessionID string) (*datatypes.TurnResponse, error) {
	payload, err := json.Marshal(datatypes.TurnRequest{
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/message", getOrchestratorBaseURL())
	resp, err := chatHTTPClient.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to reach orchestrator: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orchestrator returned an error (status %d): %s",
			resp.StatusCode, string(body))
	}

	var turn datatypes.TurnResponse
	if err := json.Unmarshal(body, &turn); err != nil {
		return nil, fmt.Errorf("failed to parse response from orchestrator: %w", err)
	}
	return &turn, nil
}
