package boxes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadedpez/caseclash/internal/types"
)

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog("testdata/catalog.yaml")
	require.NoError(t, err)

	boxes := catalog.Boxes()
	require.Len(t, boxes, 2)
	assert.Equal(t, "high-roller", boxes[0].ID)

	starter, err := catalog.Box("starter")
	require.NoError(t, err)
	assert.Equal(t, int64(50), starter.PriceVirtual)
	assert.Len(t, starter.Entries, 3)
	assert.Equal(t, "80.5", starter.Entries[1].Item.MarketValue.String())

	item, ok := catalog.Item("dragon-lore")
	assert.True(t, ok)
	assert.Equal(t, "Dragon Lore", item.Name)

	_, err = catalog.Box("missing")
	assert.True(t, types.IsGameError(err, types.ErrBoxNotFound))
}

func TestParseCatalogRejects(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{
			name: "weights do not sum",
			yaml: `
items:
  - {id: a, name: A, rarity: common, market_value: "1"}
boxes:
  - id: bad
    price: 10
    entries:
      - {item: a, weight: 99}
`,
		},
		{
			name: "unknown item",
			yaml: `
boxes:
  - id: bad
    price: 10
    entries:
      - {item: ghost, weight: 100}
`,
		},
		{
			name: "bad market value",
			yaml: `
items:
  - {id: a, name: A, rarity: common, market_value: "lots"}
`,
		},
		{
			name: "unknown rarity",
			yaml: `
items:
  - {id: a, name: A, rarity: mythic, market_value: "1"}
`,
		},
		{
			name: "duplicate box",
			yaml: `
items:
  - {id: a, name: A, rarity: common, market_value: "1"}
boxes:
  - {id: dup, price: 1, entries: [{item: a, weight: 100}]}
  - {id: dup, price: 1, entries: [{item: a, weight: 100}]}
`,
		},
		{
			name: "not yaml",
			yaml: "boxes: [",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tc.yaml))
			assert.True(t, types.IsGameError(err, types.ErrInvalidBoxConfig), "got %v", err)
		})
	}
}
