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

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/intent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

// Retrieval-augmented answers degrade to these when the knowledge base
// or the LLM is unreachable.
const (
	storageDegraded   = "I can't reach the knowledge base right now, but as a rule of thumb: keep leafy produce cool and dry, and keep tomatoes and bananas out of the fridge."
	nutritionDegraded = "I can't reach the knowledge base right now, so I can't compare those reliably. Please try again in a bit."
	seasonalDegraded  = "I can't check seasonal data right now. Please try again in a bit."
	advisoryDegraded  = "I can't look that up right now. Please try again in a bit."
)

// RAG system prompts are topic-scoped so answers stay on subject.
const (
	storageSystemPrompt = "You are a food storage expert for a fresh produce marketplace in Ethiopia. Answer the question using only the provided context. Be practical and brief. Do not mention ordering, the marketplace, or account features."

	nutritionSystemPrompt = "You are a nutrition advisor for a fresh produce marketplace in Ethiopia. Compare products using only the provided context. Be factual and brief. Do not mention ordering, the marketplace, or account features."

	seasonalSystemPrompt = "You are a produce seasonality expert for Ethiopian markets. Answer using only the provided context. Be brief. Do not mention ordering, the marketplace, or account features."

	advisorySystemPrompt = "You are a food and produce advisor for a fresh produce marketplace in Ethiopia. Answer using only the provided context. Be helpful and brief. Do not mention ordering, the marketplace, or account features."
)

func (r *Router) registerCustomerHandlers() {
	r.register(intent.IntentCustomerRegister, r.customerRegister)
	r.register(intent.IntentCustomerCheckAvailability, r.customerCheckAvailability)
	r.register(intent.IntentCustomerStorageAdvice, r.customerStorageAdvice)
	r.register(intent.IntentCustomerNutritionQuery, r.customerNutritionQuery)
	r.register(intent.IntentCustomerSeasonalQuery, r.customerSeasonalQuery)
	r.register(intent.IntentCustomerWhatIsInSeason, r.customerWhatIsInSeason)
	r.register(intent.IntentCustomerGeneralAdvisory, r.customerGeneralAdvisory)
	r.register(intent.IntentCustomerPlaceOrder, r.customerPlaceOrder)
	r.register(intent.IntentCustomerSetDeliveryDate, r.customerSetDeliveryDate)
	r.register(intent.IntentCustomerSetDeliveryLocation, r.customerSetDeliveryLocation)
	r.register(intent.IntentCustomerConfirmPayment, r.customerConfirmPayment)
	r.register(intent.IntentCustomerCheckDeliveries, r.customerCheckDeliveries)
}

func (r *Router) customerRegister(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"customer_name":    "What name should I put on the account?",
		"phone_number":     "What's your phone number?",
		"default_location": "Where should we deliver by default?",
	}); prompt != "" {
		return prompt, nil
	}

	resp, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
		Entity: datatypes.EntityUsers,
		Op:     datatypes.OpCreate,
		Data: map[string]any{
			"name":             req.Slot("customer_name"),
			"phone":            req.Slot("phone_number"),
			"default_location": req.Slot("default_location"),
			"role":             datatypes.RoleCustomer,
		},
	})
	if err != nil {
		return "", err
	}
	user := resp.First()
	if user == nil {
		return "", fmt.Errorf("customer registration returned no record")
	}

	userID, _ := user["user_id"].(string)
	req.Session.UserID = userID
	req.Session.UserRole = datatypes.RoleCustomer
	req.Session.MergeContext(map[string]any{"user": user})

	return fmt.Sprintf("Welcome to GebeyaKart, %s! Your account is ready. What would you like to order?",
		req.Slot("customer_name")), nil
}

func (r *Router) customerCheckAvailability(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"product_name": "Which product are you looking for?",
	}); prompt != "" {
		return prompt, nil
	}
	name := req.Slot("product_name")

	product, err := r.market.FindProductByAnyName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		// The "product" may actually be a supplier name ("does Abebe
		// have tomatoes?"). Scope the session to that supplier if so.
		if supplier, serr := r.market.FindUserByName(ctx, name); serr == nil && supplier.Role == datatypes.RoleSupplier {
			req.Session.MergeContext(map[string]any{"supplier_id": supplier.UserID})
			return r.supplierAvailability(ctx, supplier)
		}
		return fmt.Sprintf("I couldn't find %s in our catalog. You can ask me what's in season to see what's available.", name), nil
	}
	if err != nil {
		return "", err
	}

	listings, err := r.market.ListListings(ctx, store.ListingFilter{ProductID: product.ProductID})
	if err != nil {
		return "", err
	}
	var inStock []store.SupplierListing
	for _, l := range listings {
		if l.QuantityAvailable > 0 {
			inStock = append(inStock, l)
		}
	}
	if len(inStock) == 0 {
		return fmt.Sprintf("%s is in our catalog but no supplier has it in stock right now.", product.NameEN), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Yes, %s is available:\n", product.NameEN)
	for _, l := range inStock {
		line := fmt.Sprintf("• %.0f %s at %.2f ETB per %s", l.QuantityAvailable, l.Unit, l.UnitPriceETB, l.Unit)
		if l.Status == store.ListingStatusOnSale {
			line += " (flash sale!)"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("How much would you like?")
	return b.String(), nil
}

func (r *Router) supplierAvailability(ctx context.Context, supplier *store.User) (string, error) {
	listings, err := r.market.ListListings(ctx, store.ListingFilter{SupplierID: supplier.UserID})
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		return fmt.Sprintf("%s doesn't have anything in stock right now.", supplier.Name), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s currently offers:\n", supplier.Name)
	for _, l := range listings {
		product, perr := r.market.GetProduct(ctx, l.ProductID)
		name := l.ProductID
		if perr == nil {
			name = product.NameEN
		}
		fmt.Fprintf(&b, "• %s: %.0f %s at %.2f ETB per %s\n",
			name, l.QuantityAvailable, l.Unit, l.UnitPriceETB, l.Unit)
	}
	return b.String(), nil
}

// ragAnswer retrieves knowledge chunks and asks the LLM to answer from
// them. All infrastructure failures degrade to the provided fallback.
func (r *Router) ragAnswer(ctx context.Context, req *Request, query, systemPrompt, degraded string) (string, error) {
	out, err := req.Runner.Invoke(ctx, "vector_search",
		datatypes.SearchRequest{Query: query, TopK: 5}, req.Session.Context)
	if err != nil {
		if errors.Is(err, tools.ErrBudgetExhausted) {
			return "", err
		}
		r.logger.Warn("knowledge retrieval failed", "error", err.Error())
		return degraded, nil
	}
	resp, ok := out.(*datatypes.SearchResponse)
	if !ok {
		return degraded, nil
	}

	var contexts []string
	for _, result := range resp.Results {
		if len(result.Text) > 10 {
			contexts = append(contexts, result.Text)
		}
		if len(contexts) == 3 {
			break
		}
	}
	if len(contexts) == 0 {
		return degraded, nil
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(contexts, "\n---\n"), query)
	answer, err := r.llm.WithSystemPrompt(systemPrompt).Complete(ctx, prompt, nil, llm.GenerationParams{})
	if err != nil || strings.TrimSpace(answer) == "" {
		return degraded, nil
	}
	return strings.TrimSpace(answer), nil
}

func (r *Router) customerStorageAdvice(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"product_name": "Which product do you want storage advice for?",
	}); prompt != "" {
		return prompt, nil
	}
	query := fmt.Sprintf("how to store %s to keep it fresh", req.Slot("product_name"))
	return r.ragAnswer(ctx, req, query, storageSystemPrompt, storageDegraded)
}

func (r *Router) customerNutritionQuery(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"product_a": "Which two products should I compare?",
		"product_b": "What's the second product to compare?",
	}); prompt != "" {
		return prompt, nil
	}
	query := fmt.Sprintf("nutrition of %s compared to %s", req.Slot("product_a"), req.Slot("product_b"))
	if metric := req.Slot("nutrient_metric"); metric != "" {
		query += " focusing on " + metric
	}
	return r.ragAnswer(ctx, req, query, nutritionSystemPrompt, nutritionDegraded)
}

func (r *Router) customerSeasonalQuery(ctx context.Context, req *Request) (string, error) {
	query := "seasonal availability of produce in Ethiopia"
	if season := req.Slot("season"); season != "" {
		query = fmt.Sprintf("produce available in %s in Ethiopia", season)
	}
	if location := req.Slot("location"); location != "" {
		query += " around " + location
	}
	return r.ragAnswer(ctx, req, query, seasonalSystemPrompt, seasonalDegraded)
}

func (r *Router) customerWhatIsInSeason(ctx context.Context, req *Request) (string, error) {
	query := "what produce is in season right now in Ethiopia"
	if location := req.Slot("location"); location != "" {
		query += " around " + location
	}
	return r.ragAnswer(ctx, req, query, seasonalSystemPrompt, seasonalDegraded)
}

func (r *Router) customerGeneralAdvisory(ctx context.Context, req *Request) (string, error) {
	question := req.Slot("question")
	if question == "" {
		question = req.Utterance
	}
	if product := req.Slot("related_product"); product != "" {
		question += " (about " + product + ")"
	}
	return r.ragAnswer(ctx, req, question, advisorySystemPrompt, advisoryDegraded)
}

// orderItem is the structured shape the classifier extracts for
// order_items.
type orderItem struct {
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
}

func (r *Router) customerPlaceOrder(ctx context.Context, req *Request) (string, error) {
	items := parseOrderItems(req.Classification.FilledSlots["order_items"])
	if len(items) == 0 {
		return "What would you like to order? For example: 2 kg of tomatoes and 1 kg of onions.", nil
	}
	deliveryPhrase := req.Slot("preferred_delivery_date")
	if deliveryPhrase == "" {
		deliveryPhrase = req.Slot("delivery_date")
	}
	if deliveryPhrase == "" {
		return "When would you like this delivered?", nil
	}
	if req.Session.UserID == "" {
		return "Before I can place the order, let's set up your account. What's your name, phone number, and delivery location?", nil
	}

	preferredSupplier, _ := req.Session.Context["supplier_id"].(string)
	if name := req.Slot("supplier_name"); name != "" {
		if supplier, err := r.market.FindUserByName(ctx, name); err == nil {
			preferredSupplier = supplier.UserID
		}
	}

	type pickedLine struct {
		listing store.SupplierListing
		product *store.Product
		item    orderItem
	}
	var lines []pickedLine
	var unavailable []string
	total := 0.0

	for _, item := range items {
		product, err := r.market.FindProductByAnyName(ctx, item.ProductName)
		if err != nil {
			unavailable = append(unavailable, item.ProductName)
			continue
		}
		listings, err := r.market.ListListings(ctx, store.ListingFilter{ProductID: product.ProductID})
		if err != nil {
			return "", err
		}
		picked := pickListing(listings, preferredSupplier, item.Quantity)
		if picked == nil {
			unavailable = append(unavailable, item.ProductName)
			continue
		}
		lines = append(lines, pickedLine{listing: *picked, product: product, item: item})
		total += item.Quantity * picked.UnitPriceETB
	}

	if len(lines) == 0 {
		return fmt.Sprintf("Sorry, %s %s not available right now. You can ask me what's in season to see alternatives.",
			strings.Join(unavailable, " and "), pluralIs(len(unavailable))), nil
	}

	deliveryDate := resolveDate(ctx, req.Runner, req.Session.Context, deliveryPhrase)

	txResp, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
		Entity: datatypes.EntityTransactions,
		Op:     datatypes.OpCreate,
		Data: map[string]any{
			"user_id":        req.Session.UserID,
			"total_price":    total,
			"payment_method": store.PaymentCOD,
			"status":         store.TxStatusPending,
			"delivery_date":  deliveryDate,
		},
	})
	if err != nil {
		return "", err
	}
	order := txResp.First()
	if order == nil {
		return "", fmt.Errorf("order creation returned no record")
	}
	orderID, _ := order["order_id"].(string)

	for _, line := range lines {
		unit := line.item.Unit
		if unit == "" {
			unit = "kg"
		}
		if _, err := invokeData(ctx, req.Runner, req.Session.Context, datatypes.DataRequest{
			Entity: datatypes.EntityOrderItems,
			Op:     datatypes.OpCreate,
			Data: map[string]any{
				"order_id":       orderID,
				"product_id":     line.product.ProductID,
				"supplier_id":    line.listing.SupplierID,
				"quantity":       line.item.Quantity,
				"unit":           unit,
				"price_per_unit": line.listing.UnitPriceETB,
				"subtotal":       line.item.Quantity * line.listing.UnitPriceETB,
			},
		}); err != nil {
			return "", err
		}
	}

	req.Session.MergeContext(map[string]any{"order_reference": orderID})

	reply := fmt.Sprintf("Order placed successfully! Total: %.2f ETB. Payment will be Cash on Delivery.", total)
	if deliveryDate != "" {
		reply += fmt.Sprintf(" Delivery is set for %s.", deliveryDate)
	}
	if len(unavailable) > 0 {
		reply += fmt.Sprintf(" Note: %s %s not available and was left out.",
			strings.Join(unavailable, " and "), pluralIs(len(unavailable)))
	}
	return reply, nil
}

// pickListing prefers the session's supplier, then the first listing
// that can cover the quantity, then the first in-stock listing.
func pickListing(listings []store.SupplierListing, preferredSupplier string, quantity float64) *store.SupplierListing {
	var fallback *store.SupplierListing
	for i := range listings {
		l := &listings[i]
		if l.QuantityAvailable <= 0 {
			continue
		}
		if preferredSupplier != "" && l.SupplierID == preferredSupplier {
			return l
		}
		if fallback == nil || (fallback.QuantityAvailable < quantity && l.QuantityAvailable >= quantity) {
			fallback = l
		}
	}
	return fallback
}

// parseOrderItems tolerates both structured items and a bare product
// name string.
func parseOrderItems(v any) []orderItem {
	var items []orderItem
	switch val := v.(type) {
	case []any:
		for _, raw := range val {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			item := orderItem{}
			item.ProductName, _ = m["product_name"].(string)
			if q, ok := m["quantity"].(float64); ok {
				item.Quantity = q
			}
			item.Unit, _ = m["unit"].(string)
			if item.ProductName == "" {
				continue
			}
			if item.Quantity <= 0 {
				item.Quantity = 1
			}
			items = append(items, item)
		}
	case string:
		if strings.TrimSpace(val) != "" {
			items = append(items, orderItem{ProductName: val, Quantity: 1})
		}
	}
	return items
}

func pluralIs(n int) string {
	if n > 1 {
		return "are"
	}
	return "is"
}

// latestOrderRef resolves the order the user is talking about: an
// explicit reference slot first, then the session's last order.
func (r *Router) latestOrderRef(req *Request) string {
	if ref := req.Slot("order_reference"); ref != "" {
		return ref
	}
	ref, _ := req.Session.Context["order_reference"].(string)
	return ref
}

func (r *Router) customerSetDeliveryDate(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"delivery_date": "What delivery date would you like?",
	}); prompt != "" {
		return prompt, nil
	}
	ref := r.latestOrderRef(req)
	if ref == "" {
		return "Which order is this for? I don't see a recent order on this session.", nil
	}
	date := resolveDate(ctx, req.Runner, req.Session.Context, req.Slot("delivery_date"))
	if date == "" {
		return "I couldn't understand that date. Could you give it like 'tomorrow', 'Friday', or 2025-12-01?", nil
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
		Data:   map[string]any{"delivery_date": date},
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Done! Delivery for order %s... is set for %s.", tx.OrderID[:8], date), nil
}

func (r *Router) customerSetDeliveryLocation(ctx context.Context, req *Request) (string, error) {
	if prompt := requireSlots(req, map[string]string{
		"delivery_location": "Where should we deliver?",
	}); prompt != "" {
		return prompt, nil
	}
	location := req.Slot("delivery_location")
	req.Session.MergeContext(map[string]any{"delivery_location": location})
	return fmt.Sprintf("Got it, we'll deliver to %s.", location), nil
}

func (r *Router) customerConfirmPayment(ctx context.Context, req *Request) (string, error) {
	ref := r.latestOrderRef(req)
	if ref == "" {
		if prompt := requireSlots(req, map[string]string{
			"order_reference": "Which order are you confirming payment for?",
		}); prompt != "" {
			return prompt, nil
		}
	}
	tx, err := r.market.FindTransactionByPrefix(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("I couldn't find an order matching %s.", ref), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Order %s... totals %.2f ETB, payable in cash on delivery. No advance payment is needed.",
		tx.OrderID[:8], tx.TotalPrice), nil
}

func (r *Router) customerCheckDeliveries(ctx context.Context, req *Request) (string, error) {
	if req.Session.UserID == "" {
		return "I don't see an account on this session yet. Are you registered with us?", nil
	}
	txs, err := r.market.ListTransactions(ctx, store.TransactionFilter{UserID: req.Session.UserID})
	if err != nil {
		return "", err
	}
	var open []store.Transaction
	for _, tx := range txs {
		if tx.Status == store.TxStatusPending || tx.Status == store.TxStatusConfirmed || tx.Status == store.TxStatusInTransit {
			open = append(open, tx)
		}
	}
	if len(open) == 0 {
		return "You have no deliveries on the way right now.", nil
	}
	var b strings.Builder
	b.WriteString("Here are your upcoming deliveries:\n")
	for _, tx := range open {
		line := fmt.Sprintf("• Order %s...: %.2f ETB - %s", tx.OrderID[:8], tx.TotalPrice, tx.Status)
		if tx.DeliveryDate != "" {
			line += " - arriving " + tx.DeliveryDate
		}
		b.WriteString(line + "\n")
	}
	return b.String(), nil
}
