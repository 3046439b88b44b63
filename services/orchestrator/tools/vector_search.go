// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

// defaultTopK bounds knowledge retrieval when the caller does not ask
// for a specific result count.
const defaultTopK = 5

// VectorSearchTool retrieves knowledge chunks from Weaviate by
// semantic similarity. A nil client means the knowledge base is not
// deployed; searches then degrade to CollaboratorUnavailableError so
// flows can answer without grounding.
type VectorSearchTool struct {
	client *weaviate.Client
}

// NewVectorSearchTool wraps a Weaviate client, which may be nil.
func NewVectorSearchTool(client *weaviate.Client) *VectorSearchTool {
	return &VectorSearchTool{client: client}
}

func (t *VectorSearchTool) Name() string { return "vector_search" }

func (t *VectorSearchTool) Description() string {
	return "Search the produce knowledge base (storage, nutrition, seasonality). Input: {query, top_k, min_score}."
}

// Run implements Tool.
func (t *VectorSearchTool) Run(ctx context.Context, input any, _ map[string]any) (any, error) {
	ctx, span := tracer.Start(ctx, "VectorSearchTool.Run")
	defer span.End()

	var req datatypes.SearchRequest
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, fmt.Errorf("vector_search requires a query")
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	span.SetAttributes(attribute.Int("top_k", req.TopK))

	if t.client == nil {
		return nil, &datatypes.CollaboratorUnavailableError{
			Service: "weaviate",
			Message: "knowledge base is not configured",
		}
	}

	nearText := t.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{req.Query})

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := t.client.GraphQL().Get().
		WithClassName(datatypes.KnowledgeClass).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(req.TopK).
		Do(ctx)
	if err != nil {
		return nil, &datatypes.CollaboratorUnavailableError{
			Service: "weaviate",
			Message: "knowledge search failed",
			Err:     err,
		}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("parse knowledge search results: %w", err)
	}

	resp := &datatypes.SearchResponse{}
	for _, chunk := range parsed.Get.KnowledgeChunk {
		if chunk.Text == "" {
			continue
		}
		if req.MinScore > 0 && chunk.Additional.Certainty < req.MinScore {
			continue
		}
		resp.Results = append(resp.Results, datatypes.SearchResult{
			Text:   chunk.Text,
			Score:  chunk.Additional.Certainty,
			Source: chunk.Source,
		})
	}
	return resp, nil
}
