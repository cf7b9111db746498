package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/notify"
	"github.com/fadedpez/caseclash/pkg/services/ledger"
	"github.com/fadedpez/caseclash/pkg/services/scoring"
)

func feeKey(sessionID, participantID string) string {
	return fmt.Sprintf("%s:fee:%s", sessionID, participantID)
}

func payoutKey(sessionID, participantID string) string {
	return fmt.Sprintf("%s:payout:%s", sessionID, participantID)
}

func refundKey(sessionID, participantID string) string {
	return fmt.Sprintf("%s:refund:%s", sessionID, participantID)
}

// start collects every human's entry fee as one batch and activates the
// battle. Participants who can't pay are evicted and the lobby reopens.
func (s *session) start(ctx context.Context) result {
	next := s.state.Clone()
	cost := next.EntryCost

	if cost > 0 {
		evict := make(map[string]bool)
		var postings []ledger.Posting
		for _, p := range next.Participants {
			if p.IsBot || p.HasPaid {
				continue
			}
			wallet, err := s.m.ledger.GetWallet(ctx, p.WalletID)
			switch {
			case types.IsGameError(err, types.ErrWalletNotFound):
				evict[p.ID] = true
				continue
			case err != nil:
				s.logger.LogError(err)
				return fail(err)
			case wallet.Balance < cost:
				evict[p.ID] = true
				continue
			}
			postings = append(postings, ledger.Posting{
				WalletID:        p.WalletID,
				Direction:       ledger.Debit,
				Kind:            entities.TransactionKindEntryFee,
				Amount:          cost,
				RelatedEntityID: next.ID,
				IdempotencyKey:  feeKey(next.ID, p.ID),
				Description:     fmt.Sprintf("Entry fee for %s battle", next.Mode),
			})
		}

		if len(evict) == 0 && len(postings) > 0 {
			_, err := s.m.ledger.PostBatch(ctx, postings)
			if walletID, ok := ledger.InsufficientWallet(err); ok {
				for _, p := range next.Participants {
					if p.WalletID == walletID && !p.IsBot {
						evict[p.ID] = true
					}
				}
			} else if err != nil {
				// the batch either fully committed or not at all; retry on the next tick
				s.logger.LogError(types.WrapError(types.ErrSettlementFailure, "failed to collect entry fees", err))
				return fail(types.WrapError(types.ErrSettlementFailure, "failed to collect entry fees", err))
			}
		}

		if len(evict) > 0 {
			return s.revert(ctx, next, evict)
		}
	}

	now := s.m.clock.Now()
	for _, p := range next.Participants {
		if !p.IsBot {
			p.HasPaid = true
		}
	}
	due := now.Add(s.m.config.roundInterval(next.Mode))
	next.Status = entities.BattleActive
	next.CurrentRound = 0
	next.CountdownEndsAt = nil
	next.NextRoundAt = &due
	s.commit(ctx, next, notify.EventBattleStarted)

	s.logger.WithFields(logging.Fields{"pool": next.Pool(), "players": len(next.Participants)}).Info("Battle started")
	return s.ok()
}

// revert drops the participants who couldn't pay and returns to waiting
func (s *session) revert(ctx context.Context, next *entities.BattleSession, evict map[string]bool) result {
	next.Participants = removeParticipants(next.Participants, evict)
	next.Status = entities.BattleWaiting
	next.CountdownEndsAt = nil
	next.ExpiresAt = s.m.clock.Now().Add(s.m.config.LobbyTimeout)
	s.commit(ctx, next, notify.EventParticipantLeft, notify.EventBattleReverted)

	s.logger.WithField("evicted", len(evict)).Warn("Entry fees could not be collected, lobby reopened")
	return result{
		session: next.Clone(),
		err:     types.NewGameError(types.ErrInsufficientFunds, fmt.Sprintf("%d participant(s) could not pay the entry fee", len(evict))),
	}
}

// finish scores the battle and credits the winners. Payouts are recorded
// before crediting so a retry pays exactly the same amounts.
func (s *session) finish(ctx context.Context) result {
	next := s.state.Clone()

	if next.Payouts == nil {
		res, err := scoring.Score(scoring.Input{
			Mode:         next.Mode,
			TeamCount:    next.TeamCount,
			TotalRounds:  next.TotalRounds(),
			Pool:         next.Pool(),
			Participants: next.Participants,
		}, s.m.rng)
		if err != nil {
			reason := ReasonScoringFailed
			if errors.Is(err, scoring.ErrNoEligibleParticipants) {
				reason = ReasonNoEligible
			}
			s.logger.WithField("error", err.Error()).Error("Scoring failed, cancelling battle")
			return s.cancelWithRefund(ctx, reason, entities.BattleCancelled)
		}

		payouts := make(map[string]int64, len(res.Payouts))
		var retained int64
		for id, amount := range res.Payouts {
			if p := next.Participant(id); p != nil && p.IsBot {
				retained += amount
				continue
			}
			payouts[id] = amount
		}
		if retained > 0 {
			s.logger.WithField("retained", retained).Info("Bot shares retained by the house")
		}
		next.Payouts = payouts
		next.JackpotRoll = res.JackpotRoll
	}

	var postings []ledger.Posting
	for _, p := range next.Participants {
		amount := next.Payouts[p.ID]
		if amount <= 0 || p.IsBot {
			continue
		}
		postings = append(postings, ledger.Posting{
			WalletID:        p.WalletID,
			Direction:       ledger.Credit,
			Kind:            entities.TransactionKindPayout,
			Amount:          amount,
			RelatedEntityID: next.ID,
			IdempotencyKey:  payoutKey(next.ID, p.ID),
			Description:     fmt.Sprintf("Winnings from %s battle", next.Mode),
		})
	}

	if len(postings) > 0 {
		if _, err := s.m.ledger.PostBatch(ctx, postings); err != nil {
			if s.state.Payouts == nil {
				s.commit(ctx, next)
			}
			return fail(types.WrapError(types.ErrSettlementFailure, "failed to credit payouts", err))
		}
	}

	next.Status = entities.BattleFinished
	next.FinishedAt = timeNow(s.m.clock)
	next.NextRoundAt = nil
	s.commit(ctx, next, notify.EventBattleFinished)

	s.logger.WithFields(logging.Fields{"paid": scoring.PayoutMap(next.Payouts).Total(), "pool": next.Pool()}).Info("Battle finished")
	return s.ok()
}

// cancelWithRefund refunds every collected fee, then ends the battle with
// status. If a refund fails the reason is kept and tick retries.
func (s *session) cancelWithRefund(ctx context.Context, reason string, status entities.BattleStatus) result {
	next := s.state.Clone()
	next.CancelReason = reason

	var failed error
	for _, p := range next.Participants {
		if p.IsBot || !p.HasPaid || next.EntryCost <= 0 {
			continue
		}
		_, err := s.m.ledger.Credit(ctx, ledger.Posting{
			WalletID:        p.WalletID,
			Kind:            entities.TransactionKindRefund,
			Amount:          next.EntryCost,
			RelatedEntityID: next.ID,
			IdempotencyKey:  refundKey(next.ID, p.ID),
			Description:     fmt.Sprintf("Refund: %s", reason),
		})
		if err != nil && failed == nil {
			failed = err
		}
	}

	if failed != nil {
		if s.state.CancelReason != reason {
			s.commit(ctx, next)
		}
		err := types.WrapError(types.ErrSettlementFailure, "failed to refund entry fees", failed)
		s.logger.LogError(err)
		return fail(err)
	}

	event := notify.EventBattleCancelled
	if status == entities.BattleExpired {
		event = notify.EventBattleExpired
	}
	next.Status = status
	next.FinishedAt = timeNow(s.m.clock)
	next.CountdownEndsAt = nil
	next.NextRoundAt = nil
	s.commit(ctx, next, event)

	s.logger.WithFields(logging.Fields{"reason": reason, "status": status}).Info("Battle closed with refunds")
	return s.ok()
}
