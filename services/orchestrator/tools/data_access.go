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
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
)

// DataAccessTool executes validated DataRequests against the
// marketplace store. It is the only write path the agent has.
type DataAccessTool struct {
	market *store.Marketplace
}

// NewDataAccessTool wraps the marketplace store.
func NewDataAccessTool(market *store.Marketplace) *DataAccessTool {
	return &DataAccessTool{market: market}
}

func (t *DataAccessTool) Name() string { return "database_access" }

func (t *DataAccessTool) Description() string {
	return "Read and write marketplace records (users, products, supplier_products, competitor_prices, transactions, order_items, flash_sales). Input: {entity, operation, filters, data, id}."
}

// Run implements Tool.
func (t *DataAccessTool) Run(ctx context.Context, input any, _ map[string]any) (any, error) {
	ctx, span := tracer.Start(ctx, "DataAccessTool.Run")
	defer span.End()

	var req datatypes.DataRequest
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("entity", req.Entity),
		attribute.String("operation", req.Op),
	)

	records, err := t.execute(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Absence is data, not failure: flows decide how to phrase it.
			return &datatypes.DataResponse{Records: nil, Err: err.Error()}, nil
		}
		return nil, err
	}
	return &datatypes.DataResponse{Records: records}, nil
}

func (t *DataAccessTool) execute(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Entity {
	case datatypes.EntityUsers:
		return t.users(ctx, req)
	case datatypes.EntityProducts:
		return t.products(ctx, req)
	case datatypes.EntitySupplierProducts:
		return t.listings(ctx, req)
	case datatypes.EntityCompetitorPrices:
		return t.competitorPrices(ctx, req)
	case datatypes.EntityTransactions:
		return t.transactions(ctx, req)
	case datatypes.EntityOrderItems:
		return t.orderItems(ctx, req)
	case datatypes.EntityFlashSales:
		return t.flashSales(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported entity %q", req.Entity)
	}
}

func stringFilter(filters map[string]any, key string) string {
	v, _ := filters[key].(string)
	return v
}

func single(v any, err error) ([]map[string]any, error) {
	if err != nil {
		return nil, err
	}
	rec, err := toRecord(v)
	if err != nil {
		return nil, err
	}
	return []map[string]any{rec}, nil
}

func (t *DataAccessTool) users(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		users, err := t.market.ListUsers(ctx, stringFilter(req.Filters, "role"))
		if err != nil {
			return nil, err
		}
		return toRecords(users)
	case datatypes.OpGet:
		return single(t.market.GetUser(ctx, req.ID))
	case datatypes.OpSearch:
		name := stringFilter(req.Filters, "name")
		phone := stringFilter(req.Filters, "phone")
		role := stringFilter(req.Filters, "role")
		if phone != "" && role != "" {
			return single(t.market.FindUserByIdentity(ctx, name, phone, role))
		}
		return single(t.market.FindUserByName(ctx, name))
	case datatypes.OpCreate:
		var u store.User
		if err := decodeInput(req.Data, &u); err != nil {
			return nil, err
		}
		if err := t.market.CreateUser(ctx, &u); err != nil {
			return nil, err
		}
		return single(&u, nil)
	default:
		return nil, fmt.Errorf("users does not support operation %q", req.Op)
	}
}

func (t *DataAccessTool) products(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		products, err := t.market.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		return toRecords(products)
	case datatypes.OpGet:
		return single(t.market.GetProduct(ctx, req.ID))
	case datatypes.OpSearch:
		return single(t.market.FindProductByAnyName(ctx, stringFilter(req.Filters, "name")))
	case datatypes.OpCreate:
		var p store.Product
		if err := decodeInput(req.Data, &p); err != nil {
			return nil, err
		}
		if err := t.market.CreateProduct(ctx, &p); err != nil {
			return nil, err
		}
		return single(&p, nil)
	default:
		return nil, fmt.Errorf("products does not support operation %q", req.Op)
	}
}

func (t *DataAccessTool) listings(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		listings, err := t.market.ListListings(ctx, store.ListingFilter{
			SupplierID: stringFilter(req.Filters, "supplier_id"),
			ProductID:  stringFilter(req.Filters, "product_id"),
		})
		if err != nil {
			return nil, err
		}
		return toRecords(listings)
	case datatypes.OpGet:
		return single(t.market.GetListing(ctx, req.ID))
	case datatypes.OpCreate:
		var l store.SupplierListing
		if err := decodeInput(req.Data, &l); err != nil {
			return nil, err
		}
		if err := t.market.CreateListing(ctx, &l); err != nil {
			return nil, err
		}
		return single(&l, nil)
	case datatypes.OpUpdate:
		var patch store.SupplierListing
		if err := decodeInput(req.Data, &patch); err != nil {
			return nil, err
		}
		return single(t.market.UpdateListing(ctx, req.ID, func(l *store.SupplierListing) {
			applyListingPatch(l, &patch, req.Data)
		}))
	default:
		return nil, fmt.Errorf("supplier_products does not support operation %q", req.Op)
	}
}

// applyListingPatch copies only the fields present in the raw patch
// map, so a quantity update never zeroes the price.
func applyListingPatch(l, patch *store.SupplierListing, raw map[string]any) {
	if _, ok := raw["quantity_available"]; ok {
		l.QuantityAvailable = patch.QuantityAvailable
	}
	if _, ok := raw["unit_price_etb"]; ok {
		l.UnitPriceETB = patch.UnitPriceETB
	}
	if _, ok := raw["unit"]; ok {
		l.Unit = patch.Unit
	}
	if _, ok := raw["expiry_date"]; ok {
		l.ExpiryDate = patch.ExpiryDate
	}
	if _, ok := raw["available_delivery_days"]; ok {
		l.AvailableDeliveryDays = patch.AvailableDeliveryDays
	}
	if _, ok := raw["status"]; ok {
		l.Status = patch.Status
	}
}

func (t *DataAccessTool) competitorPrices(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		prices, err := t.market.ListCompetitorPrices(ctx, stringFilter(req.Filters, "product_id"))
		if err != nil {
			return nil, err
		}
		return toRecords(prices)
	case datatypes.OpCreate:
		var cp store.CompetitorPrice
		if err := decodeInput(req.Data, &cp); err != nil {
			return nil, err
		}
		if err := t.market.AddCompetitorPrice(ctx, &cp); err != nil {
			return nil, err
		}
		return single(&cp, nil)
	default:
		return nil, fmt.Errorf("competitor_prices does not support operation %q", req.Op)
	}
}

func (t *DataAccessTool) transactions(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		txs, err := t.market.ListTransactions(ctx, store.TransactionFilter{
			UserID: stringFilter(req.Filters, "user_id"),
			Status: stringFilter(req.Filters, "status"),
		})
		if err != nil {
			return nil, err
		}
		return toRecords(txs)
	case datatypes.OpGet:
		return single(t.market.GetTransaction(ctx, req.ID))
	case datatypes.OpSearch:
		return single(t.market.FindTransactionByPrefix(ctx, stringFilter(req.Filters, "order_reference")))
	case datatypes.OpCreate:
		var tx store.Transaction
		if err := decodeInput(req.Data, &tx); err != nil {
			return nil, err
		}
		if err := t.market.CreateTransaction(ctx, &tx); err != nil {
			return nil, err
		}
		return single(&tx, nil)
	case datatypes.OpUpdate:
		status := stringFilter(req.Data, "status")
		deliveryDate := stringFilter(req.Data, "delivery_date")
		return single(t.market.UpdateTransaction(ctx, req.ID, func(tx *store.Transaction) {
			if status != "" {
				tx.Status = status
			}
			if deliveryDate != "" {
				tx.DeliveryDate = deliveryDate
			}
		}))
	default:
		return nil, fmt.Errorf("transactions does not support operation %q", req.Op)
	}
}

func (t *DataAccessTool) orderItems(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		items, err := t.market.ListOrderItems(ctx, store.OrderItemFilter{
			SupplierID: stringFilter(req.Filters, "supplier_id"),
			OrderID:    stringFilter(req.Filters, "order_id"),
		})
		if err != nil {
			return nil, err
		}
		return toRecords(items)
	case datatypes.OpCreate:
		var item store.OrderItem
		if err := decodeInput(req.Data, &item); err != nil {
			return nil, err
		}
		if err := t.market.CreateOrderItem(ctx, &item); err != nil {
			return nil, err
		}
		return single(&item, nil)
	default:
		return nil, fmt.Errorf("order_items does not support operation %q", req.Op)
	}
}

func (t *DataAccessTool) flashSales(ctx context.Context, req datatypes.DataRequest) ([]map[string]any, error) {
	switch req.Op {
	case datatypes.OpList:
		sales, err := t.market.ListFlashSales(ctx,
			stringFilter(req.Filters, "supplier_id"),
			stringFilter(req.Filters, "status"))
		if err != nil {
			return nil, err
		}
		return toRecords(sales)
	case datatypes.OpCreate:
		var fs store.FlashSale
		if err := decodeInput(req.Data, &fs); err != nil {
			return nil, err
		}
		if err := t.market.CreateFlashSale(ctx, &fs); err != nil {
			return nil, err
		}
		return single(&fs, nil)
	case datatypes.OpUpdate:
		status := stringFilter(req.Data, "status")
		return single(t.market.UpdateFlashSale(ctx, req.ID, func(fs *store.FlashSale) {
			if status != "" {
				fs.Status = status
			}
		}))
	default:
		return nil, fmt.Errorf("flash_sales does not support operation %q", req.Op)
	}
}
