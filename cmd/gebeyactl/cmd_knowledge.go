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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

func runIngest(cmd *cobra.Command, args []string) {
	var docs []datatypes.KnowledgeDocument
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		source := ingestSource
		if source == "" {
			source = filepath.Base(path)
		}
		docs = append(docs, datatypes.KnowledgeDocument{
			Text:   string(content),
			Source: source,
		})
	}

	payload, err := json.Marshal(datatypes.IngestRequest{Documents: docs})
	if err != nil {
		log.Fatalf("Failed to create request body: %v", err)
	}

	url := fmt.Sprintf("%s/v1/knowledge/documents", getOrchestratorBaseURL())
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Failed to reach orchestrator: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		ChunksCreated int `json:"chunks_created"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}
	fmt.Printf("Ingested %d file(s) into %d chunk(s).\n", len(docs), result.ChunksCreated)
}

func runSearchKnowledge(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")

	payload, err := json.Marshal(datatypes.SearchRequest{
		Query: query,
		TopK:  searchLimit,
	})
	if err != nil {
		log.Fatalf("Failed to create request body: %v", err)
	}

	url := fmt.Sprintf("%s/v1/knowledge/search", getOrchestratorBaseURL())
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Failed to reach orchestrator: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator returned an error (status %d): %s", resp.StatusCode, string(body))
	}

	var result datatypes.SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}

	if len(result.Results) == 0 {
		fmt.Println("No matching knowledge found.")
		return
	}
	for i, hit := range result.Results {
		fmt.Printf("%d. [%.4f] %s\n   %s\n", i+1, hit.Score, hit.Source, hit.Text)
	}
}
