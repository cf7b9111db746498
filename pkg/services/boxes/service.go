package boxes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// OpenRequest asks to open one box outside of a battle
type OpenRequest struct {
	WalletID       string
	BoxID          string
	IdempotencyKey string
	// SellBack credits the item's market value straight back to the wallet
	SellBack bool
}

// Opening is the result of opening a box
type Opening struct {
	Box          *entities.LootBox
	Item         entities.Item
	Transactions []*entities.Transaction
	// Replayed is true when the key had already been used and the original item is returned
	Replayed bool
}

// Service opens loot boxes against a wallet
type Service struct {
	catalog *Catalog
	ledger  ledger.Ledger
	rng     resolver.Source
	logger  *logging.Logger
}

// NewService creates a new box opening service
func NewService(catalog *Catalog, l ledger.Ledger, rng resolver.Source) *Service {
	if rng == nil {
		rng = resolver.DefaultSource()
	}
	return &Service{
		catalog: catalog,
		ledger:  l,
		rng:     rng,
		logger:  logging.Default.WithField("component", "boxes"),
	}
}

// Catalog returns the catalog the service opens boxes from
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// OpenLootBox charges the box price and returns the drawn item. The draw
// happens before the debit and is only granted if the debit commits.
func (s *Service) OpenLootBox(ctx context.Context, req OpenRequest) (*Opening, error) {
	if req.WalletID == "" {
		return nil, types.NewGameError(types.ErrInvalidArgument, "wallet id is required")
	}
	box, err := s.catalog.Box(req.BoxID)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}
	key := "box:" + req.IdempotencyKey

	if box.PriceVirtual > 0 {
		replayed, err := s.replay(ctx, box, req, key)
		if err != nil || replayed != nil {
			return replayed, err
		}
	}

	item, err := resolver.Resolve(box, s.rng)
	if err != nil {
		s.logger.LogError(err)
		return nil, err
	}

	opening := &Opening{Box: box, Item: item}
	if box.PriceVirtual == 0 {
		return opening, nil
	}

	related := relatedID(box.ID, item.ID)
	description := fmt.Sprintf("Opened %s", box.Name)

	if req.SellBack {
		opening.Transactions, err = s.ledger.AtomicExchange(ctx, ledger.Exchange{
			WalletID:        req.WalletID,
			DebitAmount:     box.PriceVirtual,
			DebitKind:       entities.TransactionKindBoxOpen,
			CreditAmount:    item.MarketValue.Floor().IntPart(),
			CreditKind:      entities.TransactionKindExchange,
			RelatedEntityID: related,
			IdempotencyKey:  key,
			Description:     description,
		})
	} else {
		var tx *entities.Transaction
		tx, err = s.ledger.Debit(ctx, ledger.Posting{
			WalletID:        req.WalletID,
			Kind:            entities.TransactionKindBoxOpen,
			Amount:          box.PriceVirtual,
			RelatedEntityID: related,
			IdempotencyKey:  key,
			Description:     description,
		})
		if tx != nil {
			opening.Transactions = []*entities.Transaction{tx}
		}
	}
	if err != nil {
		return nil, err
	}

	// A concurrent request with the same key may have committed first
	if committed := opening.Transactions[0].RelatedEntityID; committed != related {
		original, ok := s.itemFromRelated(box.ID, committed)
		if !ok {
			return nil, s.conflict(req)
		}
		opening.Item = original
		opening.Replayed = true
	}

	s.logger.WithFields(logging.Fields{
		"wallet": req.WalletID,
		"box":    box.ID,
		"item":   opening.Item.ID,
	}).Info("Box opened")

	return opening, nil
}

// replay rebuilds an opening already committed under key without drawing again
func (s *Service) replay(ctx context.Context, box *entities.LootBox, req OpenRequest, key string) (*Opening, error) {
	debitKey := key
	if req.SellBack {
		debitKey = key + ":debit"
	}
	debit, err := s.ledger.FindTransaction(ctx, debitKey)
	if err != nil {
		return nil, err
	}
	if debit == nil {
		// the same key used for the other kind of opening is still a reuse
		other := key + ":debit"
		if req.SellBack {
			other = key
		}
		prior, err := s.ledger.FindTransaction(ctx, other)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return nil, s.conflict(req)
		}
		return nil, nil
	}

	item, ok := s.itemFromRelated(box.ID, debit.RelatedEntityID)
	if !ok || debit.WalletID != req.WalletID {
		return nil, s.conflict(req)
	}

	opening := &Opening{Box: box, Item: item, Transactions: []*entities.Transaction{debit}, Replayed: true}
	if req.SellBack {
		credit, err := s.ledger.FindTransaction(ctx, key+":credit")
		if err != nil {
			return nil, err
		}
		if credit != nil {
			opening.Transactions = append(opening.Transactions, credit)
		}
	}

	s.logger.WithFields(logging.Fields{
		"wallet": req.WalletID,
		"box":    box.ID,
		"item":   item.ID,
	}).Debug("Replayed box opening")
	return opening, nil
}

func (s *Service) conflict(req OpenRequest) error {
	return types.NewGameError(types.ErrIdempotencyConflict,
		fmt.Sprintf("idempotency key %s belongs to another operation", req.IdempotencyKey))
}

func relatedID(boxID, itemID string) string {
	return boxID + "/" + itemID
}

func (s *Service) itemFromRelated(boxID, related string) (entities.Item, bool) {
	itemID, ok := strings.CutPrefix(related, boxID+"/")
	if !ok {
		return entities.Item{}, false
	}
	return s.catalog.Item(itemID)
}
