// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies user utterances into marketplace intents.
//
// The registry is the single source of truth for intent names, their
// flows, slot requirements, and the tools each intent is expected to
// touch. The classifier prompts an LLM with the registry catalog and
// validates the model's JSON against it.
package intent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
)

// Tool names suggested by intent definitions. These must match the
// names registered in the tools package.
const (
	ToolDatabaseAccess   = "database_access"
	ToolVectorSearch     = "vector_search"
	ToolImageGenerator   = "image_generator"
	ToolFlashSaleManager = "flash_sale_manager"
)

// Intent names. Grouped by flow.
const (
	// Onboarding
	IntentUserIsCustomer    = "intent.user.is_customer"
	IntentUserIsSupplier    = "intent.user.is_supplier"
	IntentUserHasAccount    = "intent.user.has_account"
	IntentUserNewUser       = "intent.user.new_user"
	IntentUserVerifyAccount = "intent.user.verify_account"

	// Customer
	IntentCustomerRegister            = "intent.customer.register"
	IntentCustomerCheckAvailability   = "intent.customer.check_availability"
	IntentCustomerStorageAdvice       = "intent.customer.storage_advice"
	IntentCustomerNutritionQuery      = "intent.customer.nutrition_query"
	IntentCustomerSeasonalQuery       = "intent.customer.seasonal_query"
	IntentCustomerWhatIsInSeason      = "intent.customer.what_is_in_season"
	IntentCustomerGeneralAdvisory     = "intent.customer.general_advisory"
	IntentCustomerPlaceOrder          = "intent.customer.place_order"
	IntentCustomerSetDeliveryDate     = "intent.customer.set_delivery_date"
	IntentCustomerSetDeliveryLocation = "intent.customer.set_delivery_location"
	IntentCustomerConfirmPayment      = "intent.customer.confirm_payment"
	IntentCustomerCheckDeliveries     = "intent.customer.check_deliveries"

	// Supplier
	IntentSupplierRegister              = "intent.supplier.register"
	IntentSupplierAddProduct            = "intent.supplier.add_product"
	IntentSupplierAddToExisting         = "intent.supplier.add_to_existing"
	IntentSupplierCreateNewListing      = "intent.supplier.create_new_listing"
	IntentSupplierSetQuantity           = "intent.supplier.set_quantity"
	IntentSupplierUpdateInventory       = "intent.supplier.update_inventory"
	IntentSupplierSetDeliveryDates      = "intent.supplier.set_delivery_dates"
	IntentSupplierSetExpiryDate         = "intent.supplier.set_expiry_date"
	IntentSupplierSetPrice              = "intent.supplier.set_price"
	IntentSupplierPricingInsight        = "intent.supplier.request_pricing_insight"
	IntentSupplierGenerateProductImage  = "intent.supplier.generate_product_image"
	IntentSupplierCheckStock            = "intent.supplier.check_stock"
	IntentSupplierViewExpiringProducts  = "intent.supplier.view_expiring_products"
	IntentSupplierAcceptFlashSale       = "intent.supplier.accept_flash_sale"
	IntentSupplierDeclineFlashSale      = "intent.supplier.decline_flash_sale"
	IntentSupplierViewDeliverySchedule  = "intent.supplier.view_delivery_schedule"
	IntentSupplierCheckDeliveriesByDate = "intent.supplier.check_deliveries_by_date"
	IntentSupplierOrderNotification     = "intent.supplier.receive_order_notification"
	IntentSupplierAcceptOrder           = "intent.supplier.accept_order"
	IntentSupplierDeclineOrder          = "intent.supplier.decline_order"
)

var registry = map[string]datatypes.IntentDefinition{
	IntentUserIsCustomer: {
		Flow:        datatypes.FlowOnboarding,
		Description: "User identifies as a customer.",
	},
	IntentUserIsSupplier: {
		Flow:        datatypes.FlowOnboarding,
		Description: "User identifies as a supplier.",
	},
	IntentUserHasAccount: {
		Flow:        datatypes.FlowOnboarding,
		Description: "User says they already have an account.",
	},
	IntentUserNewUser: {
		Flow:        datatypes.FlowOnboarding,
		Description: "User says they are new and have no account.",
	},
	IntentUserVerifyAccount: {
		Flow:           datatypes.FlowOnboarding,
		Description:    "User provides name and phone to verify an existing account.",
		RequiredSlots:  []string{"user_name", "phone_number"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},

	IntentCustomerRegister: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Register a new customer account.",
		RequiredSlots:  []string{"customer_name", "phone_number", "default_location"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentCustomerCheckAvailability: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Check whether a product is available and at what price.",
		RequiredSlots:  []string{"product_name"},
		OptionalSlots:  []string{"quantity", "delivery_date"},
		SuggestedTools: []string{ToolDatabaseAccess, ToolVectorSearch},
	},
	IntentCustomerStorageAdvice: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Ask how to store a product to keep it fresh.",
		RequiredSlots:  []string{"product_name"},
		SuggestedTools: []string{ToolVectorSearch},
	},
	IntentCustomerNutritionQuery: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Compare the nutrition of two products.",
		RequiredSlots:  []string{"product_a", "product_b"},
		OptionalSlots:  []string{"nutrient_metric"},
		SuggestedTools: []string{ToolVectorSearch},
	},
	IntentCustomerSeasonalQuery: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Ask about seasonal availability of produce.",
		OptionalSlots:  []string{"season", "location"},
		SuggestedTools: []string{ToolVectorSearch},
	},
	IntentCustomerWhatIsInSeason: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Ask what produce is in season right now.",
		OptionalSlots:  []string{"location"},
		SuggestedTools: []string{ToolVectorSearch},
	},
	IntentCustomerGeneralAdvisory: {
		Flow:           datatypes.FlowCustomer,
		Description:    "General food or produce question.",
		RequiredSlots:  []string{"question"},
		OptionalSlots:  []string{"related_product"},
		SuggestedTools: []string{ToolVectorSearch},
	},
	IntentCustomerPlaceOrder: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Place an order for one or more products.",
		RequiredSlots:  []string{"order_items", "preferred_delivery_date"},
		OptionalSlots:  []string{"delivery_date", "supplier_name"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentCustomerSetDeliveryDate: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Set or change the delivery date of an order.",
		RequiredSlots:  []string{"delivery_date"},
		OptionalSlots:  []string{"order_reference"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentCustomerSetDeliveryLocation: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Set or change the delivery location of an order.",
		RequiredSlots:  []string{"delivery_location"},
		OptionalSlots:  []string{"order_reference"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentCustomerConfirmPayment: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Confirm payment for an order.",
		RequiredSlots:  []string{"order_reference"},
		OptionalSlots:  []string{"amount"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentCustomerCheckDeliveries: {
		Flow:           datatypes.FlowCustomer,
		Description:    "Check the status of the customer's deliveries.",
		OptionalSlots:  []string{"date", "order_reference"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},

	IntentSupplierRegister: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Register a new supplier account.",
		RequiredSlots:  []string{"supplier_name", "phone_number"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierAddProduct: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Start listing a product for sale.",
		RequiredSlots:  []string{"product_name"},
		OptionalSlots:  []string{"category"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierAddToExisting: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Add new stock to an existing listing (reply 'add').",
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierCreateNewListing: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Create a separate new listing for a product (reply 'new').",
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierSetQuantity: {
		Flow:           datatypes.FlowSupplier,
		Description:    "State the quantity available for the product being listed.",
		RequiredSlots:  []string{"product_name", "quantity"},
		OptionalSlots:  []string{"unit"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierUpdateInventory: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Add stock to an already listed product.",
		RequiredSlots:  []string{"product_name", "quantity"},
		OptionalSlots:  []string{"unit"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierSetDeliveryDates: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Set the days the supplier can deliver.",
		RequiredSlots:  []string{"delivery_dates"},
		OptionalSlots:  []string{"product_name"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierSetExpiryDate: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Set the expiry date of the product being listed.",
		RequiredSlots:  []string{"expiry_date"},
		OptionalSlots:  []string{"product_name"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierSetPrice: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Set the unit price of a product.",
		RequiredSlots:  []string{"product_name", "unit_price"},
		OptionalSlots:  []string{"unit"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierPricingInsight: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Ask what competitors charge for a product.",
		RequiredSlots:  []string{"product_name"},
		OptionalSlots:  []string{"location"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierGenerateProductImage: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Generate a marketing image for a product.",
		RequiredSlots:  []string{"product_name"},
		OptionalSlots:  []string{"style"},
		SuggestedTools: []string{ToolImageGenerator},
	},
	IntentSupplierCheckStock: {
		Flow:           datatypes.FlowSupplier,
		Description:    "View the supplier's current inventory.",
		OptionalSlots:  []string{"product_name"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierViewExpiringProducts: {
		Flow:           datatypes.FlowSupplier,
		Description:    "View products that expire soon.",
		OptionalSlots:  []string{"time_horizon"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierAcceptFlashSale: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Accept a proposed flash sale discount.",
		RequiredSlots:  []string{"product_name"},
		OptionalSlots:  []string{"discount_rate", "duration"},
		SuggestedTools: []string{ToolFlashSaleManager, ToolDatabaseAccess},
	},
	IntentSupplierDeclineFlashSale: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Decline a proposed flash sale.",
		RequiredSlots:  []string{"product_name"},
		OptionalSlots:  []string{"reason"},
		SuggestedTools: []string{ToolFlashSaleManager},
	},
	IntentSupplierViewDeliverySchedule: {
		Flow:           datatypes.FlowSupplier,
		Description:    "View upcoming deliveries the supplier must fulfil.",
		OptionalSlots:  []string{"date_range"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierCheckDeliveriesByDate: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Check deliveries scheduled for a specific date.",
		RequiredSlots:  []string{"date"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierOrderNotification: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Review an incoming order notification.",
		RequiredSlots:  []string{"order_reference"},
		OptionalSlots:  []string{"order_summary"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierAcceptOrder: {
		Flow:           datatypes.FlowSupplier,
		Description:    "Accept an incoming order.",
		RequiredSlots:  []string{"order_reference"},
		OptionalSlots:  []string{"notes"},
		SuggestedTools: []string{ToolDatabaseAccess},
	},
	IntentSupplierDeclineOrder: {
		Flow:          datatypes.FlowSupplier,
		Description:   "Decline an incoming order.",
		RequiredSlots: []string{"order_reference"},
		OptionalSlots: []string{"reason"},
	},
}

// Lookup returns the definition for an intent name.
func Lookup(name string) (datatypes.IntentDefinition, bool) {
	def, ok := registry[name]
	return def, ok
}

// Names returns all registered intent names, sorted for stable prompts
// and iteration.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatalogText renders the registry as the catalog block embedded in the
// classifier system prompt.
func CatalogText() string {
	var b strings.Builder
	for _, name := range Names() {
		def := registry[name]
		fmt.Fprintf(&b, "- %s: flow=%s, required=[%s], optional=[%s]\n",
			name, def.Flow,
			strings.Join(def.RequiredSlots, ", "),
			strings.Join(def.OptionalSlots, ", "))
	}
	return b.String()
}

// confirmations are the bare affirmative utterances the deterministic
// fallback recognizes when the classifier returns unknown.
var confirmations = map[string]bool{
	"yes":      true,
	"yeah":     true,
	"yep":      true,
	"okay":     true,
	"ok":       true,
	"sure":     true,
	"go ahead": true,
	"confirm":  true,
	"add":      true,
	"new":      true,
}

// IsConfirmation reports whether the utterance is a bare affirmative
// with no content of its own.
func IsConfirmation(text string) bool {
	return confirmations[strings.ToLower(strings.TrimSpace(strings.TrimRight(text, ".!")))]
}
