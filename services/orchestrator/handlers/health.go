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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Healthz reports liveness.
func Healthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Readyz reports readiness, including optional collaborator state. The
// service is ready without a vector store; retrieval degrades instead.
func Readyz(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		knowledge := "disabled"
		if client != nil {
			knowledge = "unreachable"
			if ready, err := client.Misc().ReadyChecker().Do(c.Request.Context()); err == nil && ready {
				knowledge = "ready"
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "knowledge_base": knowledge})
	}
}
