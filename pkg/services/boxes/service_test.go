package boxes

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	walletRepo "github.com/fadedpez/caseclash/pkg/repositories/wallet"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	mock_ledger "github.com/fadedpez/caseclash/pkg/services/ledger/mock"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

type OpenLootBoxTestSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *ledger.Service
	service *Service
	wallet  *entities.Wallet
}

func (s *OpenLootBoxTestSuite) SetupTest() {
	s.ctx = context.Background()
	catalog, err := LoadCatalog("testdata/catalog.yaml")
	s.Require().NoError(err)

	s.ledger = ledger.NewService(walletRepo.NewMemoryRepository(),
		ledger.WithStartingBalance(100),
		ledger.WithRetry(1, time.Millisecond, time.Millisecond))
	// 0.9 lands on silver-blade in the starter case
	s.service = NewService(catalog, s.ledger, resolver.NewFixedSource(0.9))

	s.wallet, _, err = s.ledger.GetOrCreateWallet(s.ctx, "alice")
	s.Require().NoError(err)
}

func (s *OpenLootBoxTestSuite) balance() int64 {
	w, err := s.ledger.GetWallet(s.ctx, s.wallet.ID)
	s.Require().NoError(err)
	return w.Balance
}

func (s *OpenLootBoxTestSuite) TestOpenDebitsPrice() {
	opening, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "starter", IdempotencyKey: "o1"})
	s.Require().NoError(err)
	s.Equal("silver-blade", opening.Item.ID)
	s.Require().Len(opening.Transactions, 1)
	s.Equal(entities.TransactionKindBoxOpen, opening.Transactions[0].Kind)
	s.Equal(int64(50), s.balance())
}

func (s *OpenLootBoxTestSuite) TestReplayReturnsOriginalItem() {
	first, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "starter", IdempotencyKey: "o1"})
	s.Require().NoError(err)

	// a different roll would land on rusty-knife
	s.service.rng = resolver.NewFixedSource(0.1)
	second, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "starter", IdempotencyKey: "o1"})
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Item.ID, second.Item.ID)
	s.Equal(int64(50), s.balance())
}

func (s *OpenLootBoxTestSuite) TestInsufficientFundsGrantsNothing() {
	_, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "high-roller"})
	s.True(types.IsGameError(err, types.ErrInsufficientFunds))
	s.Equal(int64(100), s.balance())
}

func (s *OpenLootBoxTestSuite) TestSellBack() {
	opening, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "starter", IdempotencyKey: "o1", SellBack: true})
	s.Require().NoError(err)
	s.Require().Len(opening.Transactions, 2)
	// 100 - 50 + floor(80.50)
	s.Equal(int64(130), s.balance())
}

func (s *OpenLootBoxTestSuite) TestSellBackReplayKeepsFirstDraw() {
	s.Require().NoError(s.service.Catalog().Add(&entities.LootBox{
		ID:           "sticker-case",
		Name:         "Sticker Case",
		PriceVirtual: 10,
		Entries: []entities.BoxEntry{
			{Item: entities.Item{ID: "paper-sticker", Name: "Paper Sticker", Rarity: entities.RarityCommon, MarketValue: decimal.RequireFromString("0.30")}, Weight: 50},
			{Item: entities.Item{ID: "golden-knife", Name: "Golden Knife", Rarity: entities.RarityLegendary, MarketValue: decimal.NewFromInt(500)}, Weight: 50},
		},
	}))

	tests := []struct {
		name        string
		firstRoll   float64
		secondRoll  float64
		wantItem    string
		wantBalance int64
		wantRows    int
	}{
		{
			name:        "zero floor credit is not posted on retry",
			firstRoll:   0.1,
			secondRoll:  0.9,
			wantItem:    "paper-sticker",
			wantBalance: 90,
			wantRows:    1,
		},
		{
			name:        "positive credit is replayed not conflicted",
			firstRoll:   0.9,
			secondRoll:  0.1,
			wantItem:    "golden-knife",
			wantBalance: 590,
			wantRows:    2,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			wallet, _, err := s.ledger.GetOrCreateWallet(s.ctx, "seller-"+tt.wantItem)
			s.Require().NoError(err)
			req := OpenRequest{WalletID: wallet.ID, BoxID: "sticker-case", IdempotencyKey: "sell-" + tt.wantItem, SellBack: true}

			s.service.rng = resolver.NewFixedSource(tt.firstRoll)
			first, err := s.service.OpenLootBox(s.ctx, req)
			s.Require().NoError(err)
			s.Equal(tt.wantItem, first.Item.ID)
			s.False(first.Replayed)

			s.service.rng = resolver.NewFixedSource(tt.secondRoll)
			second, err := s.service.OpenLootBox(s.ctx, req)
			s.Require().NoError(err)
			s.True(second.Replayed)
			s.Equal(tt.wantItem, second.Item.ID)
			s.Len(second.Transactions, tt.wantRows)

			after, err := s.ledger.GetWallet(s.ctx, wallet.ID)
			s.Require().NoError(err)
			s.Equal(tt.wantBalance, after.Balance)
		})
	}
}

func (s *OpenLootBoxTestSuite) TestKeyReusedAcrossOpeningKindsConflicts() {
	_, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "starter", IdempotencyKey: "o1"})
	s.Require().NoError(err)

	_, err = s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "starter", IdempotencyKey: "o1", SellBack: true})
	s.True(types.IsGameError(err, types.ErrIdempotencyConflict))
	s.Equal(int64(50), s.balance())
}

func (s *OpenLootBoxTestSuite) TestUnknownBox() {
	_, err := s.service.OpenLootBox(s.ctx, OpenRequest{WalletID: s.wallet.ID, BoxID: "nope"})
	s.True(types.IsGameError(err, types.ErrBoxNotFound))
}

func TestOpenLootBoxSuite(t *testing.T) {
	suite.Run(t, new(OpenLootBoxTestSuite))
}

func TestOpenLootBoxLedgerUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := mock_ledger.NewMockLedger(ctrl)

	catalog, err := LoadCatalog("testdata/catalog.yaml")
	if err != nil {
		t.Fatal(err)
	}
	service := NewService(catalog, l, resolver.NewFixedSource(0.5))

	l.EXPECT().
		FindTransaction(gomock.Any(), gomock.Any()).
		Return(nil, nil).
		Times(2)
	l.EXPECT().
		Debit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p ledger.Posting) (*entities.Transaction, error) {
			if p.Amount != 50 || p.IdempotencyKey != "box:k1" || p.RelatedEntityID != "starter/rusty-knife" {
				t.Errorf("unexpected posting %+v", p)
			}
			return nil, types.NewGameError(types.ErrLedgerUnavailable, "store down")
		})

	_, err = service.OpenLootBox(context.Background(), OpenRequest{WalletID: "w1", BoxID: "starter", IdempotencyKey: "k1"})
	if !types.IsGameError(err, types.ErrLedgerUnavailable) {
		t.Fatalf("expected LEDGER_UNAVAILABLE, got %v", err)
	}
}
