package resolver

import (
	"fmt"
	"math"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
)

// WeightEpsilon is the tolerance when comparing weight sums
const WeightEpsilon = 1e-6

// ValidateBox checks that a box can be drawn from
func ValidateBox(box *entities.LootBox) error {
	if box == nil {
		return types.NewGameError(types.ErrInvalidBoxConfig, "box is nil")
	}
	if len(box.Entries) == 0 {
		return types.NewGameError(types.ErrInvalidBoxConfig,
			fmt.Sprintf("box %s has no entries", box.ID))
	}
	if box.PriceVirtual < 0 {
		return types.NewGameError(types.ErrInvalidBoxConfig,
			fmt.Sprintf("box %s has a negative price", box.ID))
	}

	sum := 0.0
	for i, entry := range box.Entries {
		if math.IsNaN(entry.Weight) || math.IsInf(entry.Weight, 0) || entry.Weight < 0 {
			return types.NewGameError(types.ErrInvalidBoxConfig,
				fmt.Sprintf("box %s entry %d has invalid weight %v", box.ID, i, entry.Weight))
		}
		if entry.Item.MarketValue.IsNegative() {
			return types.NewGameError(types.ErrInvalidBoxConfig,
				fmt.Sprintf("box %s item %s has a negative market value", box.ID, entry.Item.ID))
		}
		sum += entry.Weight
	}

	total := box.NormalizationBase()
	if math.Abs(sum-total) > WeightEpsilon {
		return types.NewGameError(types.ErrInvalidBoxConfig,
			fmt.Sprintf("box %s weights sum to %v, expected %v", box.ID, sum, total))
	}
	return nil
}

// Resolve draws one item from the box
func Resolve(box *entities.LootBox, rng Source) (entities.Item, error) {
	if err := ValidateBox(box); err != nil {
		return entities.Item{}, err
	}
	idx, err := PickIndex(box.Weights(), rng)
	if err != nil {
		return entities.Item{}, types.WrapError(types.ErrInvalidBoxConfig,
			fmt.Sprintf("failed to draw from box %s", box.ID), err)
	}
	return box.Entries[idx].Item, nil
}

// PickIndex walks the cumulative weight table and returns the first index
// whose upper bound exceeds the roll. Zero weight entries are never picked.
func PickIndex(weights []float64, rng Source) (int, error) {
	_, idx, err := PickIndexWithRoll(weights, rng)
	return idx, err
}

// PickIndexWithRoll is PickIndex that also returns the roll in [0, total)
func PickIndexWithRoll(weights []float64, rng Source) (float64, int, error) {
	if len(weights) == 0 {
		return 0, -1, fmt.Errorf("no weights to pick from")
	}
	if rng == nil {
		rng = DefaultSource()
	}

	total := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return 0, -1, fmt.Errorf("invalid weight %v at index %d", w, i)
		}
		total += w
	}
	if total <= 0 {
		return 0, -1, fmt.Errorf("weights sum to zero")
	}

	roll := rng.Float64() * total
	cumulative := 0.0
	last := -1
	for i, w := range weights {
		if w == 0 {
			continue
		}
		cumulative += w
		last = i
		if cumulative > roll {
			return roll, i, nil
		}
	}
	// float rounding can leave roll at the very top of the table
	return roll, last, nil
}
