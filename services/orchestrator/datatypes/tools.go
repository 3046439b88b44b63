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

import "fmt"

// Operations supported by the structured data tool.
const (
	OpList   = "list"
	OpGet    = "get"
	OpSearch = "search"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Entities exposed through the structured data tool.
const (
	EntityUsers            = "users"
	EntityProducts         = "products"
	EntitySupplierProducts = "supplier_products"
	EntityCompetitorPrices = "competitor_prices"
	EntityTransactions     = "transactions"
	EntityOrderItems       = "order_items"
	EntityFlashSales       = "flash_sales"
)

// DataRequest is the typed request shape for structured data access.
// Filters narrow list/search operations; Data carries fields for
// create/update; ID addresses a single record for get/update/delete.
type DataRequest struct {
	Entity  string         `json:"entity"`
	Op      string         `json:"operation"`
	Filters map[string]any `json:"filters,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	ID      string         `json:"id,omitempty"`
}

// Validate checks the request against the supported entities and
// operations before it reaches the store.
func (r *DataRequest) Validate() error {
	switch r.Entity {
	case EntityUsers, EntityProducts, EntitySupplierProducts,
		EntityCompetitorPrices, EntityTransactions, EntityOrderItems,
		EntityFlashSales:
	default:
		return fmt.Errorf("unknown entity %q", r.Entity)
	}
	switch r.Op {
	case OpList, OpSearch:
	case OpGet, OpDelete:
		if r.ID == "" {
			return fmt.Errorf("%s on %s requires an id", r.Op, r.Entity)
		}
	case OpCreate:
		if len(r.Data) == 0 {
			return fmt.Errorf("create on %s requires data", r.Entity)
		}
	case OpUpdate:
		if r.ID == "" {
			return fmt.Errorf("update on %s requires an id", r.Entity)
		}
		if len(r.Data) == 0 {
			return fmt.Errorf("update on %s requires data", r.Entity)
		}
	default:
		return fmt.Errorf("unknown operation %q", r.Op)
	}
	return nil
}

// DataResponse is the typed result of a structured data request.
type DataResponse struct {
	Records []map[string]any `json:"records"`
	Err     string           `json:"error,omitempty"`
}

// First returns the first record, or nil when the result set is empty.
func (r *DataResponse) First() map[string]any {
	if len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// SearchRequest is the knowledge retrieval request shape.
type SearchRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score,omitempty"`
}

// SearchResult is one retrieved knowledge chunk.
type SearchResult struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
}

// SearchResponse is the knowledge retrieval result shape.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}
