package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/fadedpez/caseclash/pkg/entities"
	"github.com/fadedpez/caseclash/pkg/services/resolver"
)

// ErrNoEligibleParticipants is returned when every participant forfeited
var ErrNoEligibleParticipants = errors.New("no eligible participants left to score")

// PayoutMap maps participant ID to the amount they are owed
type PayoutMap map[string]int64

// Total returns the sum of all payouts
func (p PayoutMap) Total() int64 {
	var total int64
	for _, amount := range p {
		total += amount
	}
	return total
}

// Input is everything a strategy needs, taken from committed round data
type Input struct {
	Mode         entities.Mode
	TeamCount    int
	TotalRounds  int
	Pool         int64
	Participants []*entities.Participant
}

// Result is the outcome of scoring a finished battle
type Result struct {
	Payouts PayoutMap
	Winners []string
	// JackpotRoll is the weighted draw used to pick the jackpot winner
	JackpotRoll *float64
}

// unit is what a comparator ranks: a single participant or a whole team
type unit struct {
	key      int
	seat     int
	value    decimal.Decimal
	eligible []*entities.Participant
}

// Score applies the mode's rule and splits the pool between the winners
func Score(in Input, rng resolver.Source) (*Result, error) {
	if !in.Mode.Valid() {
		return nil, types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("unknown mode %q", in.Mode))
	}
	if in.Pool < 0 {
		return nil, types.NewGameError(types.ErrInvalidArgument, "pool cannot be negative")
	}

	units := buildUnits(in)
	if len(units) == 0 {
		return nil, ErrNoEligibleParticipants
	}

	result := &Result{}
	var winners []unit

	switch in.Mode {
	case entities.ModeClassic, entities.ModeFast, entities.ModeTerminal, entities.ModeClutch:
		winners = extremes(units, func(a, b decimal.Decimal) int { return a.Cmp(b) })
	case entities.ModeCrazy:
		winners = extremes(units, func(a, b decimal.Decimal) int { return b.Cmp(a) })
	case entities.ModeShared:
		winners = units
	case entities.ModeJackpot:
		winner, roll, err := drawJackpot(units, rng)
		if err != nil {
			return nil, err
		}
		result.JackpotRoll = &roll
		winners = []unit{winner}
	}

	result.Payouts = distribute(in.Pool, winners)
	for _, w := range winners {
		for _, p := range w.eligible {
			result.Winners = append(result.Winners, p.ID)
		}
	}
	return result, nil
}

// metric returns the decisive value of one participant under the mode
func metric(mode entities.Mode, totalRounds int, p *entities.Participant) decimal.Decimal {
	switch mode {
	case entities.ModeTerminal:
		return p.RoundValue(totalRounds - 1)
	case entities.ModeClutch:
		best, ok := p.BestItem()
		if !ok {
			return decimal.Zero
		}
		return best.MarketValue
	default:
		return p.AccumulatedValue
	}
}

// TeamOf returns the team index of a participant in a team battle
func TeamOf(p *entities.Participant, teamCount int) int {
	if p.Team != nil {
		return *p.Team
	}
	if teamCount <= 1 {
		return 0
	}
	return p.Seat % teamCount
}

func buildUnits(in Input) []unit {
	participants := make([]*entities.Participant, len(in.Participants))
	copy(participants, in.Participants)
	sort.SliceStable(participants, func(i, j int) bool { return participants[i].Seat < participants[j].Seat })

	if in.TeamCount <= 1 {
		units := make([]unit, 0, len(participants))
		for _, p := range participants {
			if p.Forfeited {
				continue
			}
			units = append(units, unit{
				key:      p.Seat,
				seat:     p.Seat,
				value:    metric(in.Mode, in.TotalRounds, p),
				eligible: []*entities.Participant{p},
			})
		}
		return units
	}

	teams := make(map[int]*unit)
	order := make([]int, 0, in.TeamCount)
	for _, p := range participants {
		team := TeamOf(p, in.TeamCount)
		u, ok := teams[team]
		if !ok {
			u = &unit{key: team, seat: p.Seat, value: decimal.Zero}
			teams[team] = u
			order = append(order, team)
		}
		value := metric(in.Mode, in.TotalRounds, p)
		if in.Mode == entities.ModeClutch {
			// best single item across the team
			if value.GreaterThan(u.value) {
				u.value = value
			}
		} else {
			u.value = u.value.Add(value)
		}
		if !p.Forfeited {
			u.eligible = append(u.eligible, p)
		}
	}

	units := make([]unit, 0, len(order))
	for _, team := range order {
		if u := teams[team]; len(u.eligible) > 0 {
			units = append(units, *u)
		}
	}
	return units
}

// extremes returns every unit tied for the best value under cmp
func extremes(units []unit, cmp func(a, b decimal.Decimal) int) []unit {
	best := []unit{units[0]}
	for _, u := range units[1:] {
		switch c := cmp(u.value, best[0].value); {
		case c > 0:
			best = []unit{u}
		case c == 0:
			best = append(best, u)
		}
	}
	return best
}

func drawJackpot(units []unit, rng resolver.Source) (unit, float64, error) {
	weights := make([]float64, len(units))
	total := 0.0
	for i, u := range units {
		w := u.value.InexactFloat64()
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		// nobody drew anything of value, every unit gets the same chance
		for i := range weights {
			weights[i] = 1
		}
	}

	roll, idx, err := resolver.PickIndexWithRoll(weights, rng)
	if err != nil {
		return unit{}, 0, fmt.Errorf("jackpot draw failed: %w", err)
	}
	return units[idx], roll, nil
}

// distribute splits pool evenly between winning units and then between each
// unit's eligible members. Leftover units go one each in seat order.
func distribute(pool int64, winners []unit) PayoutMap {
	payouts := make(PayoutMap)
	if pool <= 0 || len(winners) == 0 {
		return payouts
	}

	shares := Split(pool, len(winners))
	for i, w := range winners {
		memberShares := Split(shares[i], len(w.eligible))
		for j, p := range w.eligible {
			if memberShares[j] > 0 {
				payouts[p.ID] += memberShares[j]
			}
		}
	}
	return payouts
}

// Split divides amount into k integer shares, the first amount%k shares get one extra unit
func Split(amount int64, k int) []int64 {
	if k <= 0 {
		return nil
	}
	shares := make([]int64, k)
	base := amount / int64(k)
	remainder := amount % int64(k)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares
}
