package boxes

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// catalogFile is the on-disk YAML layout
type catalogFile struct {
	Items []rawItem `yaml:"items"`
	Boxes []rawBox  `yaml:"boxes"`
}

type rawItem struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Rarity      string `yaml:"rarity"`
	MarketValue string `yaml:"market_value"`
	ImageRef    string `yaml:"image_ref,omitempty"`
}

type rawBox struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Price       int64      `yaml:"price"`
	TotalWeight float64    `yaml:"total_weight,omitempty"`
	Entries     []rawEntry `yaml:"entries"`
}

type rawEntry struct {
	Item   string  `yaml:"item"`
	Weight float64 `yaml:"weight"`
}

// Catalog is the validated set of boxes that can be opened or battled
type Catalog struct {
	mu    sync.RWMutex
	boxes map[string]*entities.LootBox
	items map[string]entities.Item
}

// NewCatalog validates every box and indexes it
func NewCatalog(boxes ...*entities.LootBox) (*Catalog, error) {
	c := &Catalog{
		boxes: make(map[string]*entities.LootBox),
		items: make(map[string]entities.Item),
	}
	for _, box := range boxes {
		if err := c.Add(box); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadCatalog reads and validates a YAML catalog file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading box catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.WrapError(types.ErrInvalidBoxConfig, "catalog is not valid YAML", err)
	}

	items := make(map[string]entities.Item, len(file.Items))
	for _, raw := range file.Items {
		if raw.ID == "" {
			return nil, types.NewGameError(types.ErrInvalidBoxConfig, "item without id")
		}
		if _, dup := items[raw.ID]; dup {
			return nil, types.NewGameError(types.ErrInvalidBoxConfig, fmt.Sprintf("duplicate item %s", raw.ID))
		}
		value, err := decimal.NewFromString(raw.MarketValue)
		if err != nil {
			return nil, types.WrapError(types.ErrInvalidBoxConfig,
				fmt.Sprintf("item %s has an invalid market value %q", raw.ID, raw.MarketValue), err)
		}
		rarity := entities.Rarity(raw.Rarity)
		if !rarity.Valid() {
			return nil, types.NewGameError(types.ErrInvalidBoxConfig,
				fmt.Sprintf("item %s has unknown rarity %q", raw.ID, raw.Rarity))
		}
		items[raw.ID] = entities.Item{
			ID:          raw.ID,
			Name:        raw.Name,
			Rarity:      rarity,
			MarketValue: value,
			ImageRef:    raw.ImageRef,
		}
	}

	boxes := make([]*entities.LootBox, 0, len(file.Boxes))
	for _, raw := range file.Boxes {
		box := &entities.LootBox{
			ID:           raw.ID,
			Name:         raw.Name,
			PriceVirtual: raw.Price,
			TotalWeight:  raw.TotalWeight,
		}
		for _, entry := range raw.Entries {
			item, ok := items[entry.Item]
			if !ok {
				return nil, types.NewGameError(types.ErrInvalidBoxConfig,
					fmt.Sprintf("box %s references unknown item %s", raw.ID, entry.Item))
			}
			box.Entries = append(box.Entries, entities.BoxEntry{Item: item, Weight: entry.Weight})
		}
		boxes = append(boxes, box)
	}

	return NewCatalog(boxes...)
}

// Add validates a box and adds it to the catalog
func (c *Catalog) Add(box *entities.LootBox) error {
	if box == nil || box.ID == "" {
		return types.NewGameError(types.ErrInvalidBoxConfig, "box id is required")
	}
	if err := resolver.ValidateBox(box); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.boxes[box.ID]; dup {
		return types.NewGameError(types.ErrInvalidBoxConfig, fmt.Sprintf("duplicate box %s", box.ID))
	}
	c.boxes[box.ID] = box
	for _, entry := range box.Entries {
		c.items[entry.Item.ID] = entry.Item
	}
	return nil
}

// Box returns the box with the given ID
func (c *Catalog) Box(id string) (*entities.LootBox, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	box, ok := c.boxes[id]
	if !ok {
		return nil, types.NewGameError(types.ErrBoxNotFound, fmt.Sprintf("box %s not found", id))
	}
	return box, nil
}

// Boxes returns every box ordered by ID
func (c *Catalog) Boxes() []*entities.LootBox {
	c.mu.RLock()
	defer c.mu.RUnlock()

	boxes := make([]*entities.LootBox, 0, len(c.boxes))
	for _, box := range c.boxes {
		boxes = append(boxes, box)
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].ID < boxes[j].ID })
	return boxes
}

// Item looks up an item by ID across all boxes
func (c *Catalog) Item(id string) (entities.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	return item, ok
}
