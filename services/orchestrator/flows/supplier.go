// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/intent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

const (
	noSupplierReply = "I don't see a supplier account on this session. Are you registered as a supplier?"

	noPendingProductReply = "Which product is this for? Start with something like 'I want to add tomatoes'."
)

// expiryHorizonDays is the default window for expiring-stock views and
// flash sale proposals.
const expiryHorizonDays = 7

// capitalize uppercases the first letter of a product name.
func capitalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r *Router) registerSupplierHandlers() {
	r.register(intent.IntentSupplierRegister, r.supplierRegister)
	r.register(intent.IntentSupplierAddProduct, r.supplierAddProduct)
	r.register(intent.IntentSupplierAddToExisting, r.supplierAddToExisting)
	r.register(intent.IntentSupplierCreateNewListing, r.supplierCreateNewListing)
	r.register(intent.IntentSupplierSetQuantity, r.supplierSetQuantity)
	r.register(intent.IntentSupplierUpdateInventory, r.supplierUpdateInventory)
	r.register(intent.IntentSupplierSetDeliveryDates, r.supplierSetDeliveryDates)
	r.register(intent.IntentSupplierSetExpiryDate, r.supplierSetExpiryDate)
	r.register(intent.IntentSupplierSetPrice, r.supplierSetPrice)
	r.register(intent.IntentSupplierPricingInsight, r.supplierPricingInsight)
	r.register(intent.IntentSupplierGenerateProductImage, r.supplierGenerateProductImage)
	r.register(intent.IntentSupplierCheckStock, r.supplierCheckStock)
	r.register(intent.IntentSupplierViewExpiringProducts, r.supplierViewExpiringProducts)
	r.register(intent.IntentSupplierAcceptFlashSale, r.supplierAcceptFlashSale)
	r.register(intent.IntentSupplierDeclineFlashSale, r.supplierDeclineFlashSale)
	r.register(intent.IntentSupplierViewDeliverySchedule, r.supplierViewDeliverySchedule)
	r.register(intent.IntentSupplierCheckDeliveriesByDate, r.supplierCheckDeliveriesByDate)
	r.register(intent.IntentSupplierOrderNotification, r.supplierOrderNotification)
	r.register(intent.IntentSupplierAcceptOrder, r.supplierAcceptOrder)
	r.register(intent.IntentSupplierDeclineOrder, r.supplierDeclineOrder)
}

func (r *Router) supplierRegister(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"supplier_name": "What's your business or personal name?",
		"phone_number":  "What's your phone number?",
	}); prompt != "" {
		return prompt, nil
	}

	resp, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
		Entity: datatypes.EntityUsers,
		Op:     datatypes.OpCreate,
		Data: map[string]any{
			"name":  req.Slot("supplier_name"),
			"phone": req.Slot("phone_number"),
			"role":  datatypes.RoleSupplier,
		},
	})
	if err != nil {
		return "", err
	}
	user := resp.First()
	if user == nil {
		return "", fmt.Errorf("supplier registration returned no record")
	}

	userID, _ := user["user_id"].(string)
	req.Session.UserID = userID
	req.Session.UserRole = datatypes.RoleSupplier
	req.Session.MergeContext(map[string]any{"user": user})

	return fmt.Sprintf("Welcome to GebeyaKart, %s! Your supplier account is ready. Tell me what you'd like to sell, for example 'I want to add tomatoes'.",
		req.Slot("supplier_name")), nil
}

// supplierID returns the authenticated supplier id or "".
func supplierID(req *Request) string {
	if req.Session.UserRole == datatypes.RoleSupplier {
		return req.Session.UserID
	}
	return ""
}

// setPending replaces the in-progress listing state on the session.
func setPending(req *Request, pending map[string]any) {
	req.Session.Context["pending_product"] = pending
}

func clearPending(req *Request) {
	delete(req.Session.Context, "pending_product")
}

func (r *Router) supplierAddProduct(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	if prompt := requireSlots(req, map[string]string{
		"product_name": "What product would you like to add?",
	}); prompt != "" {
		return prompt, nil
	}
	name := req.Slot("product_name")

	product, err := r.market.FindProductByAnyName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		newProduct := &store.Product{
			NameEN:   capitalize(name),
			Category: req.Slot("category"),
			Unit:     "kg",
		}
		if err := r.market.CreateProduct(ctx, newProduct); err != nil {
			return "", err
		}
		product = newProduct
	} else if err != nil {
		return "", err
	}

	pending := map[string]any{
		"product_id":   product.ProductID,
		"product_name": product.NameEN,
	}

	// An existing listing forks the flow: top up or list separately.
	listings, err := r.market.ListListings(ctx, store.ListingFilter{SupplierID: sid, ProductID: product.ProductID})
	if err != nil {
		return "", err
	}
	if len(listings) > 0 {
		existing := listings[0]
		pending["existing_inventory_id"] = existing.InventoryID
		pending["existing_quantity"] = existing.QuantityAvailable
		pending["existing_price"] = existing.UnitPriceETB
		setPending(req, pending)
		return fmt.Sprintf("You already have %.0f %s of %s listed at %.2f ETB. Reply 'add' to increase existing inventory or 'new' to create a separate listing.",
			existing.QuantityAvailable, existing.Unit, product.NameEN, existing.UnitPriceETB), nil
	}

	setPending(req, pending)
	return fmt.Sprintf("Product '%s' is ready. What's the quantity you have available?", product.NameEN), nil
}

func (r *Router) supplierAddToExisting(_ context.Context, req *Request) (string, error) {
	pending := req.Session.PendingProduct()
	if pending == nil || pending["existing_inventory_id"] == nil {
		return noPendingProductReply, nil
	}
	pending["update_existing"] = true
	setPending(req, pending)
	name, _ := pending["product_name"].(string)
	return fmt.Sprintf("How much would you like to add to your existing %s inventory?", name), nil
}

func (r *Router) supplierCreateNewListing(_ context.Context, req *Request) (string, error) {
	pending := req.Session.PendingProduct()
	if pending == nil {
		return noPendingProductReply, nil
	}
	pending["update_existing"] = false
	setPending(req, pending)
	name, _ := pending["product_name"].(string)
	return fmt.Sprintf("Alright, we'll create a separate listing for %s. What's the quantity?", name), nil
}

func (r *Router) supplierSetQuantity(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	pending := req.Session.PendingProduct()
	if pending == nil {
		return noPendingProductReply, nil
	}
	quantity := req.SlotNumber("quantity")
	if quantity <= 0 {
		return "How many kilograms do you have available?", nil
	}
	name, _ := pending["product_name"].(string)
	productID, _ := pending["product_id"].(string)

	// Top-up path finishes here: the existing listing keeps its price
	// and terms.
	if update, _ := pending["update_existing"].(bool); update {
		inventoryID, _ := pending["existing_inventory_id"].(string)
		updated, err := r.market.UpdateListing(ctx, inventoryID, func(l *store.SupplierListing) {
			l.QuantityAvailable += quantity
		})
		if err != nil {
			return "", err
		}
		clearPending(req)
		return fmt.Sprintf("Added %.0f kg to your existing %s inventory. Total quantity now: %.0f kg.",
			quantity, name, updated.QuantityAvailable), nil
	}

	pending["quantity"] = quantity
	if unit := req.Slot("unit"); unit != "" {
		pending["unit"] = unit
	}
	setPending(req, pending)

	reply := fmt.Sprintf("Got it, %.0f kg of %s.", quantity, name)
	if insight := r.marketInsight(ctx, productID, name); insight != "" {
		reply += "\n\n" + insight
	}
	return reply + "\n\nWhat price per kg would you like to set?", nil
}

// marketInsight renders competitor price statistics for a product, or
// "" when no data exists.
func (r *Router) marketInsight(ctx context.Context, productID, name string) string {
	prices, err := r.market.ListCompetitorPrices(ctx, productID)
	if err != nil || len(prices) == 0 {
		return ""
	}
	min, max, sum := prices[0].PriceETBPerKg, prices[0].PriceETBPerKg, 0.0
	for _, p := range prices {
		if p.PriceETBPerKg < min {
			min = p.PriceETBPerKg
		}
		if p.PriceETBPerKg > max {
			max = p.PriceETBPerKg
		}
		sum += p.PriceETBPerKg
	}
	avg := sum / float64(len(prices))
	return fmt.Sprintf("📊 **Market Insights for %s:**\n• Average market price: %.2f ETB per kg\n• Price range: %.2f - %.2f ETB per kg\n• Suggested competitive range: %.2f - %.2f ETB per kg",
		name, avg, min, max, avg*0.95, avg*1.05)
}

func (r *Router) supplierSetPrice(ctx context.Context, req *Request) (string, error) {
	pending := req.Session.PendingProduct()
	price := req.SlotNumber("unit_price")
	if price <= 0 {
		return "What price per kg would you like to set?", nil
	}

	// Without a pending listing this is a price change on live stock.
	if pending == nil {
		return r.supplierRepriceListing(ctx, req, price)
	}

	pending["unit_price"] = price
	setPending(req, pending)
	name, _ := pending["product_name"].(string)
	return fmt.Sprintf("%.2f ETB per kg for %s. When does this stock expire? (You can say 'no expiry' if it doesn't expire soon.)",
		price, name), nil
}

func (r *Router) supplierRepriceListing(ctx context.Context, req *Request, price float64) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	name := req.Slot("product_name")
	if name == "" {
		return noPendingProductReply, nil
	}
	product, err := r.market.FindProductByAnyName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I couldn't find %s in your inventory.", name), nil
	}
	if err != nil {
		return "", err
	}
	listings, err := r.market.ListListings(ctx, store.ListingFilter{SupplierID: sid, ProductID: product.ProductID})
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return fmt.Sprintf("You don't have %s listed yet. Say 'I want to add %s' to list it.", product.NameEN, product.NameEN), nil
	}
	if _, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
		Entity: datatypes.EntitySupplierProducts,
		Op:     datatypes.OpUpdate,
		ID:     listings[0].InventoryID,
		Data:   map[string]any{"unit_price_etb": price},
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated %s to %.2f ETB per kg.", product.NameEN, price), nil
}

var noExpiryWords = map[string]bool{"no": true, "none": true, "never": true, "no expiry": true, "it doesn't": true}

func (r *Router) supplierSetExpiryDate(ctx context.Context, req *Request) (string, error) {
	pending := req.Session.PendingProduct()
	if pending == nil {
		return noPendingProductReply, nil
	}

	phrase := req.Slot("expiry_date")
	if phrase == "" {
		phrase = strings.TrimSpace(req.Utterance)
	}
	lower := strings.ToLower(strings.TrimRight(phrase, ".!"))
	if noExpiryWords[lower] {
		delete(pending, "expiry_date")
	} else if date := resolveDate(ctx, req.Runner, req.Session.Context, phrase); date != "" {
		pending["expiry_date"] = date
	} else {
		// Store the raw phrase rather than losing the answer.
		pending["expiry_date"] = phrase
	}
	setPending(req, pending)

	return "Which days can you deliver? (e.g., 'Monday to Friday' or 'weekdays')", nil
}

func (r *Router) supplierSetDeliveryDates(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	pending := req.Session.PendingProduct()
	if pending == nil {
		return noPendingProductReply, nil
	}

	days := req.Slot("delivery_dates")
	if days == "" {
		days = strings.TrimSpace(req.Utterance)
	}
	if days == "" {
		return "Which days can you deliver? (e.g., 'Monday to Friday' or 'weekdays')", nil
	}

	name, _ := pending["product_name"].(string)
	productID, _ := pending["product_id"].(string)
	quantity, _ := pending["quantity"].(float64)
	price, _ := pending["unit_price"].(float64)
	expiry, _ := pending["expiry_date"].(string)
	unit, _ := pending["unit"].(string)
	if unit == "" {
		unit = "kg"
	}

	resp, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
		Entity: datatypes.EntitySupplierProducts,
		Op:     datatypes.OpCreate,
		Data: map[string]any{
			"supplier_id":             sid,
			"product_id":              productID,
			"quantity_available":      quantity,
			"unit":                    unit,
			"unit_price_etb":          price,
			"expiry_date":             expiry,
			"available_delivery_days": days,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.First() == nil {
		return "", fmt.Errorf("listing creation returned no record")
	}

	isNewListing := pending["existing_inventory_id"] != nil
	clearPending(req)

	reply := fmt.Sprintf("Added %s to your inventory: %.0f %s at %.2f ETB per %s", name, quantity, unit, price, unit)
	if isNewListing {
		reply = fmt.Sprintf("Created new listing for %s: %.0f %s at %.2f ETB per %s", name, quantity, unit, price, unit)
	}
	if expiry != "" {
		reply += ", expires " + expiry
	}
	reply += fmt.Sprintf(", deliverable %s.", days)
	return reply, nil
}

func (r *Router) supplierUpdateInventory(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	if prompt := requireSlots(req, map[string]string{
		"product_name": "Which product do you want to restock?",
		"quantity":     "How much are you adding?",
	}); prompt != "" {
		return prompt, nil
	}
	name := req.Slot("product_name")
	quantity := req.SlotNumber("quantity")

	product, err := r.market.FindProductByAnyName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I couldn't find %s in your inventory. Say 'I want to add %s' to list it first.", name, name), nil
	}
	if err != nil {
		return "", err
	}
	listings, err := r.market.ListListings(ctx, store.ListingFilter{SupplierID: sid, ProductID: product.ProductID})
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return fmt.Sprintf("You don't have %s listed yet. Say 'I want to add %s' to list it first.", product.NameEN, product.NameEN), nil
	}

	updated, err := r.market.UpdateListing(ctx, listings[0].InventoryID, func(l *store.SupplierListing) {
		l.QuantityAvailable += quantity
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added %.0f %s to %s. Total quantity now: %.0f %s.",
		quantity, updated.Unit, product.NameEN, updated.QuantityAvailable, updated.Unit), nil
}

func (r *Router) supplierPricingInsight(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"product_name": "Which product do you want pricing insight for?",
	}); prompt != "" {
		return prompt, nil
	}
	name := req.Slot("product_name")
	product, err := r.market.FindProductByAnyName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I don't have market data for %s.", name), nil
	}
	if err != nil {
		return "", err
	}
	prices, err := r.market.ListCompetitorPrices(ctx, product.ProductID)
	if err != nil {
		return "", err
	}
	if len(prices) == 0 {
		return fmt.Sprintf("I don't have competitor price data for %s yet.", product.NameEN), nil
	}
	sum := 0.0
	for _, p := range prices {
		sum += p.PriceETBPerKg
	}
	return fmt.Sprintf("Average competitor price for %s: %.2f ETB per kg.", product.NameEN, sum/float64(len(prices))), nil
}

func (r *Router) supplierGenerateProductImage(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"product_name": "Which product should the image feature?",
	}); prompt != "" {
		return prompt, nil
	}
	out, err := req.Runner.Invoke(ctx, "image_generator", tools.ImageGenInput{
		ProductName: req.Slot("product_name"),
		Style:       req.Slot("style"),
	}, req.Session.Context)
	if err != nil {
		if errors.Is(err, tools.ErrBudgetExhausted) {
			return "", err
		}
		r.logger.Warn("image generation failed", "error", err.Error())
		return "Image generation isn't available right now. Please try again later.", nil
	}
	m, _ := out.(map[string]any)
	url, _ := m["image_url"].(string)
	if url == "" {
		return "Image generation isn't available right now. Please try again later.", nil
	}
	return fmt.Sprintf("Here's a marketing image for %s: %s", req.Slot("product_name"), url), nil
}

func (r *Router) supplierCheckStock(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	listings, err := r.market.ListListings(ctx, store.ListingFilter{SupplierID: sid})
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return "Your inventory is empty. Say 'I want to add tomatoes' to list your first product.", nil
	}

	var b strings.Builder
	b.WriteString("📦 **Your Current Inventory:**\n")
	for _, l := range listings {
		name := l.ProductID
		if product, perr := r.market.GetProduct(ctx, l.ProductID); perr == nil {
			name = product.NameEN
		}
		line := fmt.Sprintf("• %s: %.0f %s at %.2f ETB per %s", name, l.QuantityAvailable, l.Unit, l.UnitPriceETB, l.Unit)
		if l.ExpiryDate != "" {
			line += " - expires " + l.ExpiryDate
		}
		if l.Status == store.ListingStatusOnSale {
			line += " (on flash sale)"
		}
		b.WriteString(line + "\n")
	}
	return b.String(), nil
}

func (r *Router) supplierViewExpiringProducts(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	horizon := expiryHorizonDays
	if h := int(req.SlotNumber("time_horizon")); h > 0 {
		horizon = h
	}
	expiring, err := r.market.ExpiringListings(ctx, sid, horizon, time.Now())
	if err != nil {
		return "", err
	}
	if len(expiring) == 0 {
		return fmt.Sprintf("Nothing in your inventory expires in the next %d days.", horizon), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ **Expiring Products (next %d days):**\n", horizon)
	for _, l := range expiring {
		name := l.ProductID
		if product, perr := r.market.GetProduct(ctx, l.ProductID); perr == nil {
			name = product.NameEN
		}
		fmt.Fprintf(&b, "• %s: %.0f %s expires %s\n", name, l.QuantityAvailable, l.Unit, l.ExpiryDate)
	}
	b.WriteString("Consider a flash sale to move this stock. Say 'accept flash sale for <product>' to discount it.")
	return b.String(), nil
}

// flashSaleAction runs accept/decline through the flash sale manager.
func (r *Router) flashSaleAction(ctx context.Context, req *Request, action string) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	if prompt := requireSlots(req, map[string]string{
		"product_name": "Which product's flash sale is this about?",
	}); prompt != "" {
		return prompt, nil
	}
	name := req.Slot("product_name")
	product, err := r.market.FindProductByAnyName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I couldn't find %s in your inventory.", name), nil
	}
	if err != nil {
		return "", err
	}

	input := tools.FlashSaleInput{Action: action, SupplierID: sid, ProductID: product.ProductID}
	if discount := req.SlotNumber("discount_rate"); discount > 0 {
		input.DiscountPercent = discount
	}
	out, err := req.Runner.Invoke(ctx, "flash_sale_manager", input, req.Session.Context)
	if err != nil {
		if errors.Is(err, tools.ErrBudgetExhausted) {
			return "", err
		}
		return fmt.Sprintf("There's no flash sale proposal for %s right now.", product.NameEN), nil
	}

	sale, _ := out.(map[string]any)
	discount, _ := sale["discount_percent"].(float64)
	if action == "accept" {
		return fmt.Sprintf("Flash sale is live! %s is now %.0f%% off until the stock moves.", product.NameEN, discount), nil
	}
	return fmt.Sprintf("No problem, I've declined the flash sale for %s. I won't suggest it again for this stock.", product.NameEN), nil
}

func (r *Router) supplierAcceptFlashSale(ctx context.Context, req *Request) (string, error) {
	return r.flashSaleAction(ctx, req, "accept")
}

func (r *Router) supplierDeclineFlashSale(ctx context.Context, req *Request) (string, error) {
	return r.flashSaleAction(ctx, req, "decline")
}

// pendingOrderLines joins a supplier's order items with their pending
// transactions and customers.
type orderLine struct {
	tx       store.Transaction
	item     store.OrderItem
	product  string
	customer *store.User
}

func (r *Router) pendingOrderLines(ctx context.Context, sid string) ([]orderLine, error) {
	items, err := r.market.ListOrderItems(ctx, store.OrderItemFilter{SupplierID: sid})
	if err != nil {
		return nil, err
	}
	var lines []orderLine
	for _, item := range items {
		tx, err := r.market.GetTransaction(ctx, item.OrderID)
		if err != nil {
			continue
		}
		if tx.Status != store.TxStatusPending && tx.Status != store.TxStatusConfirmed {
			continue
		}
		line := orderLine{tx: *tx, item: item, product: item.ProductID}
		if product, perr := r.market.GetProduct(ctx, item.ProductID); perr == nil {
			line.product = product.NameEN
		}
		if customer, cerr := r.market.GetUser(ctx, tx.UserID); cerr == nil {
			line.customer = customer
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func formatOrderLine(line orderLine) string {
	out := fmt.Sprintf("Order %s...: %s (%.0f %s)", line.tx.OrderID[:8], line.product, line.item.Quantity, line.item.Unit)
	if line.customer != nil {
		out += " for " + line.customer.Name
		if line.customer.DefaultLocation != "" {
			out += " in " + line.customer.DefaultLocation
		}
	}
	if line.tx.DeliveryDate != "" {
		if parsed, err := time.Parse(store.DateLayout, line.tx.DeliveryDate); err == nil {
			out += " - Delivery: " + parsed.Format("Mon, Jan 2")
		} else {
			out += " - Delivery: " + line.tx.DeliveryDate
		}
	}
	return out + " - " + line.tx.Status
}

func (r *Router) supplierViewDeliverySchedule(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	lines, err := r.pendingOrderLines(ctx, sid)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "You have no upcoming deliveries.", nil
	}
	var b strings.Builder
	b.WriteString("Here's your delivery schedule:\n")
	for _, line := range lines {
		b.WriteString("• " + formatOrderLine(line) + "\n")
	}
	return b.String(), nil
}

func (r *Router) supplierCheckDeliveriesByDate(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	if prompt := requireSlots(req, map[string]string{
		"date": "Which date should I check?",
	}); prompt != "" {
		return prompt, nil
	}
	date := resolveDate(ctx, req.Runner, req.Session.Context, req.Slot("date"))
	if date == "" {
		return "I couldn't understand that date. Could you give it like 'tomorrow', 'Friday', or 2025-12-01?", nil
	}

	lines, err := r.pendingOrderLines(ctx, sid)
	if err != nil {
		return "", err
	}
	var matched []orderLine
	for _, line := range lines {
		if line.tx.DeliveryDate == date {
			matched = append(matched, line)
		}
	}
	if len(matched) == 0 {
		return fmt.Sprintf("No deliveries scheduled for %s.", date), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Deliveries for %s:\n", date)
	for _, line := range matched {
		b.WriteString("• " + formatOrderLine(line) + "\n")
	}
	return b.String(), nil
}

func (r *Router) supplierOrderNotification(ctx context.Context, req *Request) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	if prompt := requireSlots(req, map[string]string{
		"order_reference": "Which order do you want to review?",
	}); prompt != "" {
		return prompt, nil
	}
	ref := req.Slot("order_reference")
	tx, err := r.market.FindTransactionByPrefix(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I couldn't find an order matching %s.", ref), nil
	}
	if err != nil {
		return "", err
	}

	items, err := r.market.ListOrderItems(ctx, store.OrderItemFilter{SupplierID: sid, OrderID: tx.OrderID})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return fmt.Sprintf("Order %s... doesn't include any of your products.", tx.OrderID[:8]), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order %s... (%s, %.2f ETB, %s):\n", tx.OrderID[:8], tx.Status, tx.TotalPrice, tx.PaymentMethod)
	for _, item := range items {
		name := item.ProductID
		if product, perr := r.market.GetProduct(ctx, item.ProductID); perr == nil {
			name = product.NameEN
		}
		fmt.Fprintf(&b, "• %s: %.0f %s at %.2f ETB\n", name, item.Quantity, item.Unit, item.PricePerUnit)
	}
	b.WriteString("Reply 'accept order' or 'decline order'.")
	return b.String(), nil
}

// orderDecision updates the transaction status for accept/decline.
func (r *Router) orderDecision(ctx context.Context, req *Request, status, verb string) (string, error) {
	sid := supplierID(req)
	if sid == "" {
		return noSupplierReply, nil
	}
	ref := r.latestOrderRef(req)
	if ref == "" {
		return "Which order do you mean? Give me the order reference.", nil
	}
	tx, err := r.market.FindTransactionByPrefix(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I couldn't find an order matching %s.", ref), nil
	}
	if err != nil {
		return "", err
	}

	if _, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
		Entity: datatypes.EntityTransactions,
		Op:     datatypes.OpUpdate,
		ID:     tx.OrderID,
		Data:   map[string]any{"status": status},
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Order %s... %s.", tx.OrderID[:8], verb), nil
}

func (r *Router) supplierAcceptOrder(ctx context.Context, req *Request) (string, error) {
	return r.orderDecision(ctx, req, store.TxStatusConfirmed, "accepted. The customer will be notified")
}

func (r *Router) supplierDeclineOrder(ctx context.Context, req *Request) (string, error) {
	reply, err := r.orderDecision(ctx, req, store.TxStatusCancelled, "declined")
	if err != nil || reply == "" {
		return reply, err
	}
	if reason := req.Slot("reason"); reason != "" {
		reply += " Reason noted: " + reason + "."
	}
	return reply, nil
}

// SupplierDashboard renders the login-time summary: pending orders,
// expiring stock, and flash sale suggestions. Failures degrade to an
// empty string so login never breaks on a dashboard problem.
func (r *Router) SupplierDashboard(ctx context.Context, sid string) string {
	ctx, span := tracer.Start(ctx, "Router.SupplierDashboard")
	defer span.End()

	var sections []string

	if lines, err := r.pendingOrderLines(ctx, sid); err == nil && len(lines) > 0 {
		var b strings.Builder
		b.WriteString("📦 **Pending Orders:**\n")
		for _, line := range lines {
			b.WriteString("• " + formatOrderLine(line) + "\n")
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	now := time.Now()
	expiring, err := r.market.ExpiringListings(ctx, sid, expiryHorizonDays, now)
	if err == nil && len(expiring) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ **Expiring Products (next %d days):**\n", expiryHorizonDays)
		for _, l := range expiring {
			name := l.ProductID
			if product, perr := r.market.GetProduct(ctx, l.ProductID); perr == nil {
				name = product.NameEN
			}
			fmt.Fprintf(&b, "• %s: %.0f %s expires %s\n", name, l.QuantityAvailable, l.Unit, l.ExpiryDate)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if proposals, err := r.market.ProposeFlashSales(ctx, sid, expiryHorizonDays, tools.DefaultFlashSaleDiscount, now); err == nil && len(proposals) > 0 {
		var b strings.Builder
		b.WriteString("💡 **Flash Sale Suggestions:**\n")
		for _, fs := range proposals {
			name := fs.ProductID
			if product, perr := r.market.GetProduct(ctx, fs.ProductID); perr == nil {
				name = product.NameEN
			}
			fmt.Fprintf(&b, "• %s at %.0f%% off - reply 'accept flash sale for %s' to start it\n",
				name, fs.DiscountPercent, strings.ToLower(name))
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}
