// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

// Chunking parameters for knowledge ingestion.
const (
	chunkSize    = 500
	chunkOverlap = 50
)

// IngestKnowledge splits submitted documents into chunks and writes
// them to the vector store in one batch. Chunk ids are derived from
// content hashes so re-ingesting a document is idempotent.
func IngestKnowledge(client *weaviate.Client) gin.HandlerFunc {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	return func(c *gin.Context) {
		if client == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge base is not configured"})
			return
		}
		var req datatypes.IngestRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var objects []*models.Object
		for _, doc := range req.Documents {
			chunks, err := splitter.SplitText(doc.Text)
			if err != nil {
				slog.Error("Failed to split document", "source", doc.Source, "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to split document: %v", err)})
				return
			}
			for i, chunk := range chunks {
				hash := sha256.Sum256([]byte(chunk))
				chunkUUID, _ := uuid.FromBytes(hash[:16])
				source := doc.Source
				if len(chunks) > 1 {
					source = fmt.Sprintf("%s_part_%d", doc.Source, i+1)
				}
				objects = append(objects, &models.Object{
					Class: datatypes.KnowledgeClass,
					ID:    strfmt.UUID(chunkUUID.String()),
					Properties: map[string]interface{}{
						"text":   chunk,
						"source": source,
					},
				})
			}
		}
		if len(objects) == 0 {
			c.JSON(http.StatusOK, gin.H{"chunks_created": 0})
			return
		}

		resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to batch import knowledge chunks", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to write to the knowledge base"})
			return
		}

		created := 0
		for _, item := range resp {
			if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
				created++
			} else if item.Result != nil && item.Result.Errors != nil {
				for _, errItem := range item.Result.Errors.Error {
					slog.Warn("Knowledge batch item failed", "error", errItem.Message)
				}
			}
		}
		slog.Info("Ingested knowledge documents", "documents", len(req.Documents), "chunks_created", created)
		c.JSON(http.StatusOK, gin.H{"chunks_created": created})
	}
}

// SearchKnowledge runs a semantic query against the knowledge base.
// It reuses the vector search tool so results match what the agent sees.
func SearchKnowledge(search *tools.VectorSearchTool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SearchRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
			return
		}

		out, err := search.Run(c.Request.Context(), req, nil)
		if err != nil {
			if datatypes.IsUnavailable(err) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge base is unavailable"})
				return
			}
			slog.Error("Knowledge search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
