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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
)

func newTestMarket(t *testing.T) *store.Marketplace {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewMarketplace(db)
}

// fakeLLM returns a canned completion.
type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(context.Context, string, []datatypes.Message, llm.GenerationParams) (string, error) {
	return f.response, f.err
}

func (f *fakeLLM) WithSystemPrompt(string) llm.LLMClient { return f }

// TestRegistry verifies duplicate rejection and catalog rendering.
func TestRegistry(t *testing.T) {
	market := newTestMarket(t)
	r, err := NewRegistry(NewDataAccessTool(market), NewVectorSearchTool(nil))
	require.NoError(t, err)

	_, ok := r.Get("database_access")
	assert.True(t, ok)
	assert.Equal(t, []string{"database_access", "vector_search"}, r.Names())
	assert.Contains(t, r.CatalogText(), "vector_search:")

	_, err = NewRegistry(NewVectorSearchTool(nil), NewVectorSearchTool(nil))
	assert.Error(t, err)
}

// TestDataAccessTool_RoundTrip verifies create/search/update through
// the generic request shape, including map inputs as the model sends
// them.
func TestDataAccessTool_RoundTrip(t *testing.T) {
	tool := NewDataAccessTool(newTestMarket(t))
	ctx := context.Background()

	out, err := tool.Run(ctx, map[string]any{
		"entity":    "products",
		"operation": "create",
		"data":      map[string]any{"product_name_en": "Mango", "category": "Fruit", "unit": "kg", "base_price_etb": 65},
	}, nil)
	require.NoError(t, err)
	resp := out.(*datatypes.DataResponse)
	created := resp.First()
	require.NotNil(t, created)
	productID, _ := created["product_id"].(string)
	require.NotEmpty(t, productID)

	out, err = tool.Run(ctx, datatypes.DataRequest{
		Entity:  datatypes.EntityProducts,
		Op:      datatypes.OpSearch,
		Filters: map[string]any{"name": "mangoes"},
	}, nil)
	require.NoError(t, err)
	found := out.(*datatypes.DataResponse).First()
	require.NotNil(t, found)
	assert.Equal(t, productID, found["product_id"])

	out, err = tool.Run(ctx, datatypes.DataRequest{
		Entity: datatypes.EntitySupplierProducts,
		Op:     datatypes.OpCreate,
		Data:   map[string]any{"supplier_id": "sup-1", "product_id": productID, "quantity_available": 100, "unit": "kg", "unit_price_etb": 60},
	}, nil)
	require.NoError(t, err)
	listing := out.(*datatypes.DataResponse).First()
	inventoryID, _ := listing["inventory_id"].(string)
	require.NotEmpty(t, inventoryID)

	// Partial update must not zero untouched fields.
	out, err = tool.Run(ctx, datatypes.DataRequest{
		Entity: datatypes.EntitySupplierProducts,
		Op:     datatypes.OpUpdate,
		ID:     inventoryID,
		Data:   map[string]any{"quantity_available": 150},
	}, nil)
	require.NoError(t, err)
	updated := out.(*datatypes.DataResponse).First()
	assert.Equal(t, float64(150), updated["quantity_available"])
	assert.Equal(t, float64(60), updated["unit_price_etb"])
}

// TestDataAccessTool_NotFoundIsData verifies that a missing record
// comes back as an empty response with Err set, not a tool error.
func TestDataAccessTool_NotFoundIsData(t *testing.T) {
	tool := NewDataAccessTool(newTestMarket(t))

	out, err := tool.Run(context.Background(), datatypes.DataRequest{
		Entity:  datatypes.EntityProducts,
		Op:      datatypes.OpSearch,
		Filters: map[string]any{"name": "durian"},
	}, nil)
	require.NoError(t, err)
	resp := out.(*datatypes.DataResponse)
	assert.Nil(t, resp.First())
	assert.NotEmpty(t, resp.Err)
}

// TestDataAccessTool_RejectsInvalidRequests verifies validation at the
// tool boundary.
func TestDataAccessTool_RejectsInvalidRequests(t *testing.T) {
	tool := NewDataAccessTool(newTestMarket(t))

	_, err := tool.Run(context.Background(), datatypes.DataRequest{Entity: "widgets", Op: datatypes.OpList}, nil)
	assert.Error(t, err)

	_, err = tool.Run(context.Background(), datatypes.DataRequest{Entity: datatypes.EntityOrderItems, Op: datatypes.OpUpdate, ID: "x", Data: map[string]any{"quantity": 1}}, nil)
	assert.Error(t, err)
}

// TestVectorSearchTool_Unconfigured verifies the degradation contract
// when no knowledge base is deployed.
func TestVectorSearchTool_Unconfigured(t *testing.T) {
	tool := NewVectorSearchTool(nil)

	_, err := tool.Run(context.Background(), datatypes.SearchRequest{Query: "how to store mango"}, nil)
	require.Error(t, err)
	assert.True(t, datatypes.IsUnavailable(err))

	_, err = tool.Run(context.Background(), datatypes.SearchRequest{}, nil)
	assert.Error(t, err)
}

// TestDateResolverTool_FastPaths verifies deterministic resolution
// without touching the LLM.
func TestDateResolverTool_FastPaths(t *testing.T) {
	tool := NewDateResolverTool(nil)
	tool.Now = func() time.Time { return time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC) } // a Monday

	tests := map[string]string{
		"today":              "2025-11-03",
		"Tomorrow":           "2025-11-04",
		"day after tomorrow": "2025-11-05",
		"next week":          "2025-11-10",
		"in 3 days":          "2025-11-06",
		"friday":             "2025-11-07",
		"next monday":        "2025-11-10",
		"2025-12-24":         "2025-12-24",
	}
	for phrase, want := range tests {
		got, err := tool.Resolve(context.Background(), phrase)
		require.NoError(t, err, "phrase %q", phrase)
		assert.Equal(t, want, got, "phrase %q", phrase)
	}

	_, err := tool.Resolve(context.Background(), "when the rains come")
	assert.Error(t, err)
}

// TestDateResolverTool_LLMPath verifies that unrecognized phrases fall
// through to the model and its answer is validated.
func TestDateResolverTool_LLMPath(t *testing.T) {
	tool := NewDateResolverTool(&fakeLLM{response: " 2025-11-21 "})
	tool.Now = func() time.Time { return time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC) }

	got, err := tool.Resolve(context.Background(), "the friday after next")
	require.NoError(t, err)
	assert.Equal(t, "2025-11-21", got)

	bad := NewDateResolverTool(&fakeLLM{response: "sometime soon"})
	_, err = bad.Resolve(context.Background(), "the friday after next")
	assert.Error(t, err)
}

// TestFlashSaleTool_Lifecycle verifies propose → accept applies the
// discount to the listing, and decline stops re-proposals.
func TestFlashSaleTool_Lifecycle(t *testing.T) {
	market := newTestMarket(t)
	tool := NewFlashSaleTool(market)
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	tool.Now = func() time.Time { return now }
	ctx := context.Background()

	listing := &store.SupplierListing{SupplierID: "sup-1", ProductID: "prod-1", QuantityAvailable: 40, Unit: "kg",
		UnitPriceETB: 100, ExpiryDate: now.AddDate(0, 0, 2).Format(store.DateLayout)}
	require.NoError(t, market.CreateListing(ctx, listing))

	out, err := tool.Run(ctx, FlashSaleInput{Action: "propose", SupplierID: "sup-1"}, nil)
	require.NoError(t, err)
	proposals := out.([]map[string]any)
	require.Len(t, proposals, 1)

	_, err = tool.Run(ctx, FlashSaleInput{Action: "accept", SupplierID: "sup-1", ProductID: "prod-1"}, nil)
	require.NoError(t, err)

	updated, err := market.GetListing(ctx, listing.InventoryID)
	require.NoError(t, err)
	assert.Equal(t, store.ListingStatusOnSale, updated.Status)
	assert.InDelta(t, 75.0, updated.UnitPriceETB, 1e-9)

	sales, err := market.ListFlashSales(ctx, "sup-1", store.FlashStatusActive)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	_, err = tool.Run(ctx, FlashSaleInput{Action: "teleport", SupplierID: "sup-1"}, nil)
	assert.Error(t, err)
}

// TestImageGenTool_Unconfigured verifies degradation without an OpenAI
// client.
func TestImageGenTool_Unconfigured(t *testing.T) {
	tool := NewImageGenTool(nil)

	_, err := tool.Run(context.Background(), ImageGenInput{ProductName: "Mango"}, nil)
	require.Error(t, err)
	assert.True(t, datatypes.IsUnavailable(err))

	_, err = tool.Run(context.Background(), ImageGenInput{}, nil)
	assert.Error(t, err)
}
