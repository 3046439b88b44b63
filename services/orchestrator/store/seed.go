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
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

//go:embed seed_products.yaml
var seedCatalogYAML []byte

type seedCompetitorPrice struct {
	Tier           string  `yaml:"tier"`
	PriceETBPerKg  float64 `yaml:"price_etb_per_kg"`
	SourceLocation string  `yaml:"source_location"`
}

type seedProduct struct {
	NameEN           string                `yaml:"product_name_en"`
	NameAM           string                `yaml:"product_name_am"`
	NameAMLatin      string                `yaml:"product_name_am_latin"`
	Category         string                `yaml:"category"`
	Unit             string                `yaml:"unit"`
	BasePriceETB     float64               `yaml:"base_price_etb"`
	InSeasonStart    string                `yaml:"in_season_start"`
	InSeasonEnd      string                `yaml:"in_season_end"`
	CompetitorPrices []seedCompetitorPrice `yaml:"competitor_prices"`
}

type seedCatalog struct {
	Products []seedProduct `yaml:"products"`
}

// SeedCatalog loads the embedded product catalog into an empty store.
// It is a no-op when products already exist, so restarts never
// duplicate the catalog.
func (m *Marketplace) SeedCatalog(ctx context.Context, logger *slog.Logger) error {
	existing, err := m.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("check existing catalog: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	var catalog seedCatalog
	if err := yaml.Unmarshal(seedCatalogYAML, &catalog); err != nil {
		return fmt.Errorf("parse seed catalog: %w", err)
	}

	for _, sp := range catalog.Products {
		p := Product{
			NameEN:        sp.NameEN,
			NameAM:        sp.NameAM,
			NameAMLatin:   sp.NameAMLatin,
			Category:      sp.Category,
			Unit:          sp.Unit,
			BasePriceETB:  sp.BasePriceETB,
			InSeasonStart: sp.InSeasonStart,
			InSeasonEnd:   sp.InSeasonEnd,
		}
		if err := m.CreateProduct(ctx, &p); err != nil {
			return fmt.Errorf("seed product %s: %w", sp.NameEN, err)
		}
		for _, cp := range sp.CompetitorPrices {
			price := CompetitorPrice{
				ProductID:      p.ProductID,
				Tier:           cp.Tier,
				PriceETBPerKg:  cp.PriceETBPerKg,
				SourceLocation: cp.SourceLocation,
			}
			if err := m.AddCompetitorPrice(ctx, &price); err != nil {
				return fmt.Errorf("seed competitor price for %s: %w", sp.NameEN, err)
			}
		}
	}

	if logger != nil {
		logger.Info("seeded product catalog",
			slog.Int("products", len(catalog.Products)))
	}
	return nil
}
