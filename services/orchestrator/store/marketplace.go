// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gebeya.orchestrator.store")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DateLayout is the calendar date format used across the marketplace.
const DateLayout = "2006-01-02"

// Transaction statuses.
const (
	TxStatusPending   = "Pending"
	TxStatusConfirmed = "Confirmed"
	TxStatusInTransit = "InTransit"
	TxStatusDelivered = "Delivered"
	TxStatusCancelled = "Cancelled"
)

// PaymentCOD is the only supported payment method.
const PaymentCOD = "COD"

// Supplier listing statuses.
const (
	ListingStatusActive = "active"
	ListingStatusOnSale = "on_sale"
)

// Flash sale statuses.
const (
	FlashStatusProposed = "proposed"
	FlashStatusActive   = "active"
	FlashStatusDeclined = "declined"
	FlashStatusExpired  = "expired"
)

// User is a registered customer or supplier account.
type User struct {
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	DefaultLocation   string `json:"default_location,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
	Role              string `json:"role"`
	JoinedDate        string `json:"joined_date,omitempty"`
}

// Product is a catalog entry. Names are kept in English, Amharic, and
// romanized Amharic so lookups work across scripts.
type Product struct {
	ProductID     string  `json:"product_id"`
	NameEN        string  `json:"product_name_en"`
	NameAM        string  `json:"product_name_am,omitempty"`
	NameAMLatin   string  `json:"product_name_am_latin,omitempty"`
	Category      string  `json:"category"`
	Unit          string  `json:"unit"`
	BasePriceETB  float64 `json:"base_price_etb"`
	InSeasonStart string  `json:"in_season_start,omitempty"`
	InSeasonEnd   string  `json:"in_season_end,omitempty"`
}

// SupplierListing is one supplier's inventory line for a product.
type SupplierListing struct {
	InventoryID           string  `json:"inventory_id"`
	SupplierID            string  `json:"supplier_id"`
	ProductID             string  `json:"product_id"`
	QuantityAvailable     float64 `json:"quantity_available"`
	Unit                  string  `json:"unit"`
	UnitPriceETB          float64 `json:"unit_price_etb"`
	ExpiryDate            string  `json:"expiry_date,omitempty"`
	AvailableDeliveryDays string  `json:"available_delivery_days,omitempty"`
	Status                string  `json:"status"`
}

// CompetitorPrice is one observed market price point for a product.
type CompetitorPrice struct {
	PriceID        string  `json:"price_id"`
	ProductID      string  `json:"product_id"`
	Tier           string  `json:"tier,omitempty"`
	PriceETBPerKg  float64 `json:"price_etb_per_kg"`
	SourceLocation string  `json:"source_location,omitempty"`
	Date           string  `json:"date,omitempty"`
}

// Transaction is one customer order.
type Transaction struct {
	OrderID       string  `json:"order_id"`
	UserID        string  `json:"user_id"`
	Date          string  `json:"date"`
	DeliveryDate  string  `json:"delivery_date,omitempty"`
	TotalPrice    float64 `json:"total_price"`
	PaymentMethod string  `json:"payment_method"`
	Status        string  `json:"status"`
}

// OrderItem is one line of a transaction, tied to the supplier who
// fulfils it.
type OrderItem struct {
	ItemID       string  `json:"item_id"`
	OrderID      string  `json:"order_id"`
	ProductID    string  `json:"product_id"`
	SupplierID   string  `json:"supplier_id"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	PricePerUnit float64 `json:"price_per_unit"`
	Subtotal     float64 `json:"subtotal"`
}

// FlashSale is a discount proposal for an expiring listing.
type FlashSale struct {
	SaleID          string  `json:"sale_id"`
	SupplierID      string  `json:"supplier_id"`
	InventoryID     string  `json:"inventory_id"`
	ProductID       string  `json:"product_id"`
	DiscountPercent float64 `json:"discount_percent"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// Entity name segments for the key scheme.
const (
	entUsers            = "users"
	entProducts         = "products"
	entSupplierProducts = "supplier_products"
	entCompetitorPrices = "competitor_prices"
	entTransactions     = "transactions"
	entOrderItems       = "order_items"
	entFlashSales       = "flash_sales"
)

// Marketplace provides typed access to all marketplace entities on top
// of the badger engine. Safe for concurrent use.
type Marketplace struct {
	db *DB
}

// NewMarketplace wraps an open database.
func NewMarketplace(db *DB) *Marketplace {
	return &Marketplace{db: db}
}

func entityKey(entity, id string) []byte {
	return []byte("ent/" + entity + "/" + id)
}

func entityPrefix(entity string) []byte {
	return []byte("ent/" + entity + "/")
}

// put writes one record as JSON.
func (m *Marketplace) put(ctx context.Context, entity, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", entity, err)
	}
	return m.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(entityKey(entity, id), data)
	})
}

// getInto reads one record into out, returning ErrNotFound when absent.
func (m *Marketplace) getInto(ctx context.Context, entity, id string, out any) error {
	return m.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(entity, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get %s %s: %w", entity, id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// delete removes one record, returning ErrNotFound when absent.
func (m *Marketplace) delete(ctx context.Context, entity, id string) error {
	return m.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := entityKey(entity, id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
		}
		return txn.Delete(key)
	})
}

// scan iterates every record of an entity, passing raw JSON to fn.
func (m *Marketplace) scan(ctx context.Context, entity string, fn func(val []byte) error) error {
	return m.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := entityPrefix(entity)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Users
// =============================================================================

// CreateUser stores a user, assigning an id and joined date when absent.
func (m *Marketplace) CreateUser(ctx context.Context, u *User) error {
	ctx, span := tracer.Start(ctx, "Marketplace.CreateUser")
	defer span.End()

	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	if u.JoinedDate == "" {
		u.JoinedDate = time.Now().Format(DateLayout)
	}
	if u.PreferredLanguage == "" {
		u.PreferredLanguage = "English"
	}
	return m.put(ctx, entUsers, u.UserID, u)
}

// GetUser loads a user by id.
func (m *Marketplace) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := m.getInto(ctx, entUsers, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users with the given role; an empty role matches
// everyone.
func (m *Marketplace) ListUsers(ctx context.Context, role string) ([]User, error) {
	var users []User
	err := m.scan(ctx, entUsers, func(val []byte) error {
		var u User
		if err := json.Unmarshal(val, &u); err != nil {
			return err
		}
		if role == "" || u.Role == role {
			users = append(users, u)
		}
		return nil
	})
	return users, err
}

// FindUserByIdentity matches a user by case-insensitive name containment,
// exact phone, and role. Used by the login machine for account
// verification.
func (m *Marketplace) FindUserByIdentity(ctx context.Context, name, phone, role string) (*User, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.FindUserByIdentity")
	defer span.End()

	nameLower := strings.ToLower(strings.TrimSpace(name))
	var found *User
	err := m.scan(ctx, entUsers, func(val []byte) error {
		if found != nil {
			return nil
		}
		var u User
		if err := json.Unmarshal(val, &u); err != nil {
			return err
		}
		if u.Phone == phone && u.Role == role &&
			strings.Contains(strings.ToLower(u.Name), nameLower) {
			found = &u
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user %q/%s/%s: %w", name, phone, role, ErrNotFound)
	}
	return found, nil
}

// FindUserByName matches a user by case-insensitive name equality.
func (m *Marketplace) FindUserByName(ctx context.Context, name string) (*User, error) {
	nameLower := strings.ToLower(strings.TrimSpace(name))
	var found *User
	err := m.scan(ctx, entUsers, func(val []byte) error {
		if found != nil {
			return nil
		}
		var u User
		if err := json.Unmarshal(val, &u); err != nil {
			return err
		}
		if strings.ToLower(u.Name) == nameLower {
			found = &u
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user %q: %w", name, ErrNotFound)
	}
	return found, nil
}

// =============================================================================
// Products
// =============================================================================

// CreateProduct stores a product, assigning an id when absent.
func (m *Marketplace) CreateProduct(ctx context.Context, p *Product) error {
	if p.ProductID == "" {
		p.ProductID = uuid.NewString()
	}
	return m.put(ctx, entProducts, p.ProductID, p)
}

// GetProduct loads a product by id.
func (m *Marketplace) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := m.getInto(ctx, entProducts, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns the full catalog.
func (m *Marketplace) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := m.scan(ctx, entProducts, func(val []byte) error {
		var p Product
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

// FindProductByAnyName matches a product against its English, Amharic,
// or romanized name, case-insensitively. Singular/plural mismatches of
// a trailing "s" are tolerated ("tomatoes" finds "tomato").
func (m *Marketplace) FindProductByAnyName(ctx context.Context, name string) (*Product, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.FindProductByAnyName")
	defer span.End()

	needle := strings.ToLower(strings.TrimSpace(name))
	singular := strings.TrimSuffix(needle, "s")
	var found *Product
	err := m.scan(ctx, entProducts, func(val []byte) error {
		if found != nil {
			return nil
		}
		var p Product
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		for _, candidate := range []string{p.NameEN, p.NameAM, p.NameAMLatin} {
			c := strings.ToLower(candidate)
			if c == "" || c == "unknown" {
				continue
			}
			if c == needle || c == singular || strings.TrimSuffix(c, "s") == singular {
				found = &p
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("product %q: %w", name, ErrNotFound)
	}
	return found, nil
}

// =============================================================================
// Supplier listings
// =============================================================================

// ListingFilter narrows listing scans. Zero values match everything.
type ListingFilter struct {
	SupplierID string
	ProductID  string
}

// CreateListing stores a supplier inventory line.
func (m *Marketplace) CreateListing(ctx context.Context, l *SupplierListing) error {
	if l.InventoryID == "" {
		l.InventoryID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = ListingStatusActive
	}
	return m.put(ctx, entSupplierProducts, l.InventoryID, l)
}

// GetListing loads a listing by inventory id.
func (m *Marketplace) GetListing(ctx context.Context, id string) (*SupplierListing, error) {
	var l SupplierListing
	if err := m.getInto(ctx, entSupplierProducts, id, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns listings matching the filter.
func (m *Marketplace) ListListings(ctx context.Context, f ListingFilter) ([]SupplierListing, error) {
	var listings []SupplierListing
	err := m.scan(ctx, entSupplierProducts, func(val []byte) error {
		var l SupplierListing
		if err := json.Unmarshal(val, &l); err != nil {
			return err
		}
		if f.SupplierID != "" && l.SupplierID != f.SupplierID {
			return nil
		}
		if f.ProductID != "" && l.ProductID != f.ProductID {
			return nil
		}
		listings = append(listings, l)
		return nil
	})
	return listings, err
}

// UpdateListing applies mutate to a listing under the write transaction.
func (m *Marketplace) UpdateListing(ctx context.Context, id string, mutate func(*SupplierListing)) (*SupplierListing, error) {
	var l SupplierListing
	if err := m.getInto(ctx, entSupplierProducts, id, &l); err != nil {
		return nil, err
	}
	mutate(&l)
	if err := m.put(ctx, entSupplierProducts, id, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ExpiringListings returns a supplier's listings whose expiry date falls
// within the next withinDays days (inclusive), relative to now.
func (m *Marketplace) ExpiringListings(ctx context.Context, supplierID string, withinDays int, now time.Time) ([]SupplierListing, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.ExpiringListings")
	defer span.End()

	listings, err := m.ListListings(ctx, ListingFilter{SupplierID: supplierID})
	if err != nil {
		return nil, err
	}
	today := now.Truncate(24 * time.Hour)
	horizon := today.AddDate(0, 0, withinDays)

	var expiring []SupplierListing
	for _, l := range listings {
		if l.ExpiryDate == "" {
			continue
		}
		expiry, err := time.Parse(DateLayout, l.ExpiryDate)
		if err != nil {
			continue
		}
		if !expiry.Before(today) && !expiry.After(horizon) {
			expiring = append(expiring, l)
		}
	}
	sort.Slice(expiring, func(i, j int) bool {
		return expiring[i].ExpiryDate < expiring[j].ExpiryDate
	})
	return expiring, nil
}

// =============================================================================
// Competitor prices
// =============================================================================

// AddCompetitorPrice stores one market price observation.
func (m *Marketplace) AddCompetitorPrice(ctx context.Context, cp *CompetitorPrice) error {
	if cp.PriceID == "" {
		cp.PriceID = uuid.NewString()
	}
	return m.put(ctx, entCompetitorPrices, cp.PriceID, cp)
}

// ListCompetitorPrices returns price points for a product.
func (m *Marketplace) ListCompetitorPrices(ctx context.Context, productID string) ([]CompetitorPrice, error) {
	var prices []CompetitorPrice
	err := m.scan(ctx, entCompetitorPrices, func(val []byte) error {
		var cp CompetitorPrice
		if err := json.Unmarshal(val, &cp); err != nil {
			return err
		}
		if productID == "" || cp.ProductID == productID {
			prices = append(prices, cp)
		}
		return nil
	})
	return prices, err
}

// =============================================================================
// Transactions and order items
// =============================================================================

// TransactionFilter narrows transaction scans. Zero values match
// everything.
type TransactionFilter struct {
	UserID string
	Status string
}

// CreateTransaction stores an order, assigning an id when absent.
func (m *Marketplace) CreateTransaction(ctx context.Context, t *Transaction) error {
	ctx, span := tracer.Start(ctx, "Marketplace.CreateTransaction")
	defer span.End()

	if t.OrderID == "" {
		t.OrderID = uuid.NewString()
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = PaymentCOD
	}
	if t.Status == "" {
		t.Status = TxStatusPending
	}
	if t.Date == "" {
		t.Date = time.Now().Format(DateLayout)
	}
	return m.put(ctx, entTransactions, t.OrderID, t)
}

// GetTransaction loads an order by id.
func (m *Marketplace) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var t Transaction
	if err := m.getInto(ctx, entTransactions, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTransactionByPrefix matches an order whose id starts with ref.
// Users quote truncated order ids ("a1b2c3d4..."), so prefix match is
// the lookup the conversation needs.
func (m *Marketplace) FindTransactionByPrefix(ctx context.Context, ref string) (*Transaction, error) {
	ref = strings.TrimSuffix(strings.TrimSpace(ref), "...")
	var found *Transaction
	err := m.scan(ctx, entTransactions, func(val []byte) error {
		if found != nil {
			return nil
		}
		var t Transaction
		if err := json.Unmarshal(val, &t); err != nil {
			return err
		}
		if strings.HasPrefix(t.OrderID, ref) {
			found = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("transaction %q: %w", ref, ErrNotFound)
	}
	return found, nil
}

// ListTransactions returns orders matching the filter, newest first.
func (m *Marketplace) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	var txs []Transaction
	err := m.scan(ctx, entTransactions, func(val []byte) error {
		var t Transaction
		if err := json.Unmarshal(val, &t); err != nil {
			return err
		}
		if f.UserID != "" && t.UserID != f.UserID {
			return nil
		}
		if f.Status != "" && t.Status != f.Status {
			return nil
		}
		txs = append(txs, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Date > txs[j].Date
	})
	return txs, nil
}

// UpdateTransaction applies mutate to an order.
func (m *Marketplace) UpdateTransaction(ctx context.Context, id string, mutate func(*Transaction)) (*Transaction, error) {
	var t Transaction
	if err := m.getInto(ctx, entTransactions, id, &t); err != nil {
		return nil, err
	}
	mutate(&t)
	if err := m.put(ctx, entTransactions, id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// OrderItemFilter narrows order item scans. Zero values match
// everything.
type OrderItemFilter struct {
	SupplierID string
	OrderID    string
}

// CreateOrderItem stores one order line.
func (m *Marketplace) CreateOrderItem(ctx context.Context, item *OrderItem) error {
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	return m.put(ctx, entOrderItems, item.ItemID, item)
}

// ListOrderItems returns order lines matching the filter.
func (m *Marketplace) ListOrderItems(ctx context.Context, f OrderItemFilter) ([]OrderItem, error) {
	var items []OrderItem
	err := m.scan(ctx, entOrderItems, func(val []byte) error {
		var item OrderItem
		if err := json.Unmarshal(val, &item); err != nil {
			return err
		}
		if f.SupplierID != "" && item.SupplierID != f.SupplierID {
			return nil
		}
		if f.OrderID != "" && item.OrderID != f.OrderID {
			return nil
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

// =============================================================================
// Flash sales
// =============================================================================

// CreateFlashSale stores a discount proposal.
func (m *Marketplace) CreateFlashSale(ctx context.Context, fs *FlashSale) error {
	if fs.SaleID == "" {
		fs.SaleID = uuid.NewString()
	}
	if fs.Status == "" {
		fs.Status = FlashStatusProposed
	}
	if fs.CreatedAt == "" {
		fs.CreatedAt = time.Now().Format(DateLayout)
	}
	return m.put(ctx, entFlashSales, fs.SaleID, fs)
}

// ListFlashSales returns a supplier's flash sales, optionally filtered
// by status.
func (m *Marketplace) ListFlashSales(ctx context.Context, supplierID, status string) ([]FlashSale, error) {
	var sales []FlashSale
	err := m.scan(ctx, entFlashSales, func(val []byte) error {
		var fs FlashSale
		if err := json.Unmarshal(val, &fs); err != nil {
			return err
		}
		if supplierID != "" && fs.SupplierID != supplierID {
			return nil
		}
		if status != "" && fs.Status != status {
			return nil
		}
		sales = append(sales, fs)
		return nil
	})
	return sales, err
}

// UpdateFlashSale applies mutate to a flash sale.
func (m *Marketplace) UpdateFlashSale(ctx context.Context, id string, mutate func(*FlashSale)) (*FlashSale, error) {
	var fs FlashSale
	if err := m.getInto(ctx, entFlashSales, id, &fs); err != nil {
		return nil, err
	}
	mutate(&fs)
	if err := m.put(ctx, entFlashSales, id, &fs); err != nil {
		return nil, err
	}
	return &fs, nil
}

// FindFlashSaleByProduct returns the newest flash sale a supplier has
// for a product, regardless of status.
func (m *Marketplace) FindFlashSaleByProduct(ctx context.Context, supplierID, productID string) (*FlashSale, error) {
	sales, err := m.ListFlashSales(ctx, supplierID, "")
	if err != nil {
		return nil, err
	}
	var found *FlashSale
	for i := range sales {
		if sales[i].ProductID != productID {
			continue
		}
		if found == nil || sales[i].CreatedAt > found.CreatedAt {
			found = &sales[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("flash sale for product %s: %w", productID, ErrNotFound)
	}
	return found, nil
}

// ProposeFlashSales creates proposals (default 25% discount) for every
// expiring listing that does not already have a live proposal. Returns
// the proposals created by this call.
func (m *Marketplace) ProposeFlashSales(ctx context.Context, supplierID string, withinDays int, discount float64, now time.Time) ([]FlashSale, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.ProposeFlashSales")
	defer span.End()

	expiring, err := m.ExpiringListings(ctx, supplierID, withinDays, now)
	if err != nil {
		return nil, err
	}
	existing, err := m.ListFlashSales(ctx, supplierID, "")
	if err != nil {
		return nil, err
	}
	// Declined sales stay in the covered set so a supplier who said no
	// is not nagged about the same listing again.
	covered := make(map[string]bool, len(existing))
	for _, fs := range existing {
		if fs.Status != FlashStatusExpired {
			covered[fs.InventoryID] = true
		}
	}

	var created []FlashSale
	for _, l := range expiring {
		if covered[l.InventoryID] {
			continue
		}
		fs := FlashSale{
			SupplierID:      supplierID,
			InventoryID:     l.InventoryID,
			ProductID:       l.ProductID,
			DiscountPercent: discount,
			Status:          FlashStatusProposed,
			CreatedAt:       now.Format(DateLayout),
		}
		if err := m.CreateFlashSale(ctx, &fs); err != nil {
			return created, err
		}
		created = append(created, fs)
	}
	return created, nil
}
