// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// KnowledgeClass is the Weaviate class holding produce knowledge chunks
// (storage, nutrition, seasonality) used for retrieval-augmented answers.
const KnowledgeClass = "KnowledgeChunk"

// KnowledgeDocument is one document submitted for ingestion. Documents
// are split into chunks before being written to the vector store.
type KnowledgeDocument struct {
	Text   string `json:"text" validate:"required"`
	Source string `json:"source,omitempty"`
}

// IngestRequest is the payload for POST /v1/knowledge/documents.
type IngestRequest struct {
	Documents []KnowledgeDocument `json:"documents" validate:"required,min=1,dive"`
}

// Validate checks the ingest request constraints.
func (r *IngestRequest) Validate() error {
	return turnValidate.Struct(r)
}

// EnsureKnowledgeSchema creates the knowledge class if it does not
// already exist. Failures are logged and ignored; the service runs in
// lightweight mode without retrieval.
func EnsureKnowledgeSchema(client *weaviate.Client) {
	ctx := context.Background()
	exists, err := client.Schema().ClassExistenceChecker().WithClassName(KnowledgeClass).Do(ctx)
	if err != nil {
		slog.Warn("Failed to check knowledge schema", "class", KnowledgeClass, "error", err)
		return
	}
	if exists {
		return
	}

	class := &models.Class{
		Class:       KnowledgeClass,
		Description: "Chunked produce knowledge for retrieval-augmented answers",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}, Description: "Chunk content"},
			{Name: "source", DataType: []string{"text"}, Description: "Originating document"},
		},
	}
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		slog.Warn("Failed to create knowledge schema", "class", KnowledgeClass, "error", err)
		return
	}
	slog.Info("Created knowledge schema", "class", KnowledgeClass)
}
