package entities

import (
	"github.com/shopspring/decimal"
)

// Rarity represents how rare an item is within the catalog
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Valid reports whether r is one of the known rarities
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Item is immutable reference data for something a box can contain
type Item struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Rarity      Rarity          `json:"rarity" yaml:"rarity"`
	MarketValue decimal.Decimal `json:"market_value" yaml:"market_value"`
	ImageRef    string          `json:"image_ref,omitempty" yaml:"image_ref,omitempty"`
}

// DefaultTotalWeight is the normalization base used when a box doesn't set one
const DefaultTotalWeight = 100.0

// BoxEntry pairs an item with its draw weight
type BoxEntry struct {
	Item   Item    `json:"item" yaml:"item"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// LootBox is a priced, weighted-random reward container
type LootBox struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	PriceVirtual int64      `json:"price" yaml:"price"`
	TotalWeight  float64    `json:"total_weight,omitempty" yaml:"total_weight,omitempty"`
	Entries      []BoxEntry `json:"entries" yaml:"entries"`
}

// NormalizationBase returns the weight total the entries must sum to
func (b *LootBox) NormalizationBase() float64 {
	if b.TotalWeight > 0 {
		return b.TotalWeight
	}
	return DefaultTotalWeight
}

// Weights returns the entry weights in entry order
func (b *LootBox) Weights() []float64 {
	weights := make([]float64, len(b.Entries))
	for i, entry := range b.Entries {
		weights[i] = entry.Weight
	}
	return weights
}
