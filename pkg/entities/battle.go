package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// BattleStatus is the lifecycle state of a battle session
type BattleStatus string

const (
	BattleWaiting   BattleStatus = "waiting"
	BattleCountdown BattleStatus = "countdown"
	BattleActive    BattleStatus = "active"
	BattleFinished  BattleStatus = "finished"
	BattleCancelled BattleStatus = "cancelled"
	BattleExpired   BattleStatus = "expired"
)

// IsTerminal returns true once the session can no longer change
func (s BattleStatus) IsTerminal() bool {
	return s == BattleFinished || s == BattleCancelled || s == BattleExpired
}

// Mode selects the scoring rule applied after the last round
type Mode string

const (
	ModeClassic  Mode = "classic"
	ModeCrazy    Mode = "crazy"
	ModeShared   Mode = "shared"
	ModeFast     Mode = "fast"
	ModeJackpot  Mode = "jackpot"
	ModeTerminal Mode = "terminal"
	ModeClutch   Mode = "clutch"
)

// AllModes lists every supported mode
var AllModes = []Mode{ModeClassic, ModeCrazy, ModeShared, ModeFast, ModeJackpot, ModeTerminal, ModeClutch}

// Valid reports whether m is a supported mode
func (m Mode) Valid() bool {
	for _, mode := range AllModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Participant is a seat in a battle, held by a user or a bot
type Participant struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	UserID           string          `json:"user_id,omitempty"`
	WalletID         string          `json:"wallet_id,omitempty"`
	IsBot            bool            `json:"is_bot"`
	Team             *int            `json:"team,omitempty"`
	Seat             int             `json:"seat"`
	AccumulatedValue decimal.Decimal `json:"accumulated_value"`
	PerRoundLoot     [][]Item        `json:"per_round_loot"`
	JoinedAt         time.Time       `json:"joined_at"`
	HasPaid          bool            `json:"has_paid"`
	Connected        bool            `json:"connected"`
	DisconnectedAt   *time.Time      `json:"disconnected_at,omitempty"`
	Forfeited        bool            `json:"forfeited"`
}

// RoundValue returns the total value drawn by the participant in a round
func (p *Participant) RoundValue(round int) decimal.Decimal {
	total := decimal.Zero
	if round < 0 || round >= len(p.PerRoundLoot) {
		return total
	}
	for _, item := range p.PerRoundLoot[round] {
		total = total.Add(item.MarketValue)
	}
	return total
}

// BestItem returns the single most valuable item the participant drew
func (p *Participant) BestItem() (Item, bool) {
	var best Item
	found := false
	for _, round := range p.PerRoundLoot {
		for _, item := range round {
			if !found || item.MarketValue.GreaterThan(best.MarketValue) {
				best = item
				found = true
			}
		}
	}
	return best, found
}

// RoundOutcome is one draw for one participant in one round
type RoundOutcome struct {
	SessionID     string `json:"session_id"`
	Round         int    `json:"round"`
	ParticipantID string `json:"participant_id"`
	Item          *Item  `json:"item,omitempty"`
	Forfeited     bool   `json:"forfeited,omitempty"`
}

// BattleSession is the authoritative state of one battle
type BattleSession struct {
	ID              string           `json:"id"`
	Mode            Mode             `json:"mode"`
	TeamCount       int              `json:"team_count,omitempty"`
	MaxPlayers      int              `json:"max_players"`
	EntryCost       int64            `json:"entry_cost"`
	BoxSequence     []string         `json:"box_sequence"`
	CurrentRound    int              `json:"current_round"`
	Status          BattleStatus     `json:"status"`
	IsPrivate       bool             `json:"is_private"`
	CreatorID       string           `json:"creator_id,omitempty"`
	Participants    []*Participant   `json:"participants"`
	Rounds          [][]RoundOutcome `json:"rounds"`
	Payouts         map[string]int64 `json:"payouts,omitempty"`
	JackpotRoll     *float64         `json:"jackpot_roll,omitempty"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
	CountdownEndsAt *time.Time       `json:"countdown_ends_at,omitempty"`
	NextRoundAt     *time.Time       `json:"next_round_at,omitempty"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// IsTeamBattle returns true when participants are scored per team
func (b *BattleSession) IsTeamBattle() bool {
	return b.TeamCount > 1
}

// IsFull returns true once every seat is taken
func (b *BattleSession) IsFull() bool {
	return len(b.Participants) >= b.MaxPlayers
}

// HumanCount returns the number of non-bot participants
func (b *BattleSession) HumanCount() int {
	count := 0
	for _, p := range b.Participants {
		if !p.IsBot {
			count++
		}
	}
	return count
}

// Pool returns the sum of entry fees actually collected
func (b *BattleSession) Pool() int64 {
	var pool int64
	for _, p := range b.Participants {
		if p.HasPaid && !p.IsBot {
			pool += b.EntryCost
		}
	}
	return pool
}

// Participant looks up a participant by ID
func (b *BattleSession) Participant(id string) *Participant {
	for _, p := range b.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ParticipantByUser looks up the seat held by a user
func (b *BattleSession) ParticipantByUser(userID string) *Participant {
	for _, p := range b.Participants {
		if !p.IsBot && p.UserID == userID {
			return p
		}
	}
	return nil
}

// TotalRounds returns the number of rounds in the battle
func (b *BattleSession) TotalRounds() int {
	return len(b.BoxSequence)
}

// Clone returns a deep copy safe to hand to readers
func (b *BattleSession) Clone() *BattleSession {
	c := *b
	c.BoxSequence = append([]string(nil), b.BoxSequence...)
	c.Participants = make([]*Participant, len(b.Participants))
	for i, p := range b.Participants {
		pc := *p
		if p.Team != nil {
			team := *p.Team
			pc.Team = &team
		}
		if p.DisconnectedAt != nil {
			at := *p.DisconnectedAt
			pc.DisconnectedAt = &at
		}
		pc.PerRoundLoot = make([][]Item, len(p.PerRoundLoot))
		for r, items := range p.PerRoundLoot {
			pc.PerRoundLoot[r] = append([]Item(nil), items...)
		}
		c.Participants[i] = &pc
	}
	c.Rounds = make([][]RoundOutcome, len(b.Rounds))
	for r, outcomes := range b.Rounds {
		c.Rounds[r] = append([]RoundOutcome(nil), outcomes...)
	}
	if b.Payouts != nil {
		c.Payouts = make(map[string]int64, len(b.Payouts))
		for k, v := range b.Payouts {
			c.Payouts[k] = v
		}
	}
	c.JackpotRoll = cloneFloat(b.JackpotRoll)
	c.CountdownEndsAt = cloneTime(b.CountdownEndsAt)
	c.NextRoundAt = cloneTime(b.NextRoundAt)
	c.FinishedAt = cloneTime(b.FinishedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
