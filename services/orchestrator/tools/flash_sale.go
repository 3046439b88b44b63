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
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
)

// DefaultFlashSaleDiscount is the discount proposed for expiring stock.
const DefaultFlashSaleDiscount = 25.0

// flashSaleHorizonDays is how far ahead expiry is scanned when
// proposing sales.
const flashSaleHorizonDays = 7

// FlashSaleInput is the request shape for the flash sale manager.
type FlashSaleInput struct {
	// Action is one of "propose", "accept", "decline".
	Action     string `json:"action"`
	SupplierID string `json:"supplier_id"`
	ProductID  string `json:"product_id,omitempty"`

	// DiscountPercent overrides the default discount on accept or
	// propose.
	DiscountPercent float64 `json:"discount_percent,omitempty"`
}

// FlashSaleTool manages the lifecycle of flash sale proposals. An
// accepted sale marks the listing on_sale and discounts its price; a
// declined one is kept for audit so the listing is not re-proposed.
type FlashSaleTool struct {
	market *store.Marketplace
	Now    func() time.Time
}

// NewFlashSaleTool wraps the marketplace store.
func NewFlashSaleTool(market *store.Marketplace) *FlashSaleTool {
	return &FlashSaleTool{market: market, Now: time.Now}
}

func (t *FlashSaleTool) Name() string { return "flash_sale_manager" }

func (t *FlashSaleTool) Description() string {
	return "Propose, accept, or decline flash sale discounts for expiring stock. Input: {action, supplier_id, product_id, discount_percent}."
}

// Run implements Tool.
func (t *FlashSaleTool) Run(ctx context.Context, input any, _ map[string]any) (any, error) {
	ctx, span := tracer.Start(ctx, "FlashSaleTool.Run")
	defer span.End()

	var req FlashSaleInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.SupplierID == "" {
		return nil, fmt.Errorf("flash_sale_manager requires a supplier_id")
	}

	switch req.Action {
	case "propose":
		discount := req.DiscountPercent
		if discount <= 0 {
			discount = DefaultFlashSaleDiscount
		}
		created, err := t.market.ProposeFlashSales(ctx, req.SupplierID, flashSaleHorizonDays, discount, t.Now())
		if err != nil {
			return nil, err
		}
		return toRecords(created)
	case "accept":
		return t.accept(ctx, req)
	case "decline":
		return t.decline(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported flash sale action %q", req.Action)
	}
}

func (t *FlashSaleTool) accept(ctx context.Context, req FlashSaleInput) (any, error) {
	sale, err := t.market.FindFlashSaleByProduct(ctx, req.SupplierID, req.ProductID)
	if err != nil {
		return nil, err
	}
	discount := req.DiscountPercent
	if discount <= 0 {
		discount = sale.DiscountPercent
	}

	updated, err := t.market.UpdateFlashSale(ctx, sale.SaleID, func(fs *store.FlashSale) {
		fs.Status = store.FlashStatusActive
		fs.DiscountPercent = discount
	})
	if err != nil {
		return nil, err
	}

	// The listing price drops by the discount and is flagged on_sale.
	if _, err := t.market.UpdateListing(ctx, sale.InventoryID, func(l *store.SupplierListing) {
		l.UnitPriceETB = l.UnitPriceETB * (1 - discount/100)
		l.Status = store.ListingStatusOnSale
	}); err != nil {
		return nil, err
	}
	return toRecord(updated)
}

func (t *FlashSaleTool) decline(ctx context.Context, req FlashSaleInput) (any, error) {
	sale, err := t.market.FindFlashSaleByProduct(ctx, req.SupplierID, req.ProductID)
	if err != nil {
		return nil, err
	}
	updated, err := t.market.UpdateFlashSale(ctx, sale.SaleID, func(fs *store.FlashSale) {
		fs.Status = store.FlashStatusDeclined
	})
	if err != nil {
		return nil, err
	}
	return toRecord(updated)
}
