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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// KnowledgeQueryResponse is the typed shape of a KnowledgeChunk
// GraphQL Get query.
type KnowledgeQueryResponse struct {
	Get struct {
		KnowledgeChunk []struct {
			Text       string `json:"text"`
			Source     string `json:"source"`
			Additional struct {
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"KnowledgeChunk"`
	} `json:"Get"`
}

// ParseGraphQLResponse converts a raw Weaviate GraphQL response into a
// typed structure via a JSON round trip. GraphQL-level errors are
// surfaced before parsing; type mismatches yield zero values, not
// errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL query failed: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("unmarshal GraphQL response: %w", err)
	}
	return &result, nil
}
