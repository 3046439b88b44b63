// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the GebeyaKart conversation server.
//
// This is the main entry point for the containerized orchestrator
// service. It reads configuration from environment variables and
// starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12210)
//   - LLM_BACKEND_TYPE: LLM provider - openai, ollama (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: gebeya-otel-collector:4317)
//   - BADGER_DB_PATH: marketplace database directory (default: in-memory)
//   - SESSION_TTL: idle session lifetime, Go duration (default: 24h)
//   - TURN_TIMEOUT: per-turn deadline, Go duration (default: 60s)
//   - AGENT_MAX_ITERATIONS: per-turn model/tool budget (default: 30)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := orchestrator.Config{
		Port:          getEnvInt("ORCHESTRATOR_PORT", 12210),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "ollama"),
		WeaviateURL:   os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "gebeya-otel-collector:4317"),
		BadgerPath:    os.Getenv("BADGER_DB_PATH"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 0),
		TurnTimeout:   getEnvDuration("TURN_TIMEOUT", 0),
		MaxIterations: getEnvInt("AGENT_MAX_ITERATIONS", 0),
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a
// default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Ignoring unparseable duration", "key", key, "value", value)
	}
	return defaultValue
}
