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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	resumeSessionID string
	showToolCalls   bool
	ingestSource    string
	searchLimit     int

	rootCmd = &cobra.Command{
		Use:   "gebeyactl",
		Short: "A cli to manage a running GebeyaKart orchestrator",
		Long: `gebeyactl talks to the GebeyaKart conversation server over its
				HTTP API: interactive chat, session administration, and
				knowledge base management.`,
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive chat session with the marketplace assistant",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	askCmd = &cobra.Command{
		Use:   "ask [message]",
		Short: "Sends a single message and prints the reply",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all conversation sessions",
		Run:   runListSessions, // Defined in cmd_sessions.go
	}
	showSessionCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "Show the state of a specific conversation session",
		Args:  cobra.ExactArgs(1),
		Run:   runShowSession, // Defined in cmd_sessions.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a specific conversation session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_sessions.go
	}

	// --- Knowledge Base ---
	knowledgeCmd = &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the marketplace knowledge base",
	}
	ingestCmd = &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest text files into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		Run:   runIngest, // Defined in cmd_knowledge.go
	}
	searchKnowledgeCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearchKnowledge, // Defined in cmd_knowledge.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeSessionID, "resume", "",
		"Resume a conversation using a specific session ID.")
	chatCmd.Flags().BoolVar(&showToolCalls, "tools", false,
		"Print the tool calls behind each reply")

	rootCmd.AddCommand(askCmd)

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(listSessionsCmd)
	sessionCmd.AddCommand(showSessionCmd)
	sessionCmd.AddCommand(deleteSessionCmd)

	rootCmd.AddCommand(knowledgeCmd)
	knowledgeCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestSource, "source", "",
		"Source label for the ingested documents (default: file name)")
	knowledgeCmd.AddCommand(searchKnowledgeCmd)
	searchKnowledgeCmd.Flags().IntVar(&searchLimit, "limit", 5,
		"Maximum number of results")
}
