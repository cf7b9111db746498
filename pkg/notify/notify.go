package notify

import (
	"context"
	"time"

	"github.com/fadedpez/caseclash/pkg/entities"
)

// EventType names a battle state change
type EventType string

const (
	EventBattleCreated      EventType = "battle.created"
	EventParticipantJoined  EventType = "participant.joined"
	EventParticipantLeft    EventType = "participant.left"
	EventConnectionChanged  EventType = "participant.connection"
	EventCountdownStarted   EventType = "battle.countdown"
	EventBattleStarted      EventType = "battle.started"
	EventRoundCompleted     EventType = "round.completed"
	EventParticipantForfeit EventType = "participant.forfeited"
	EventBattleFinished     EventType = "battle.finished"
	EventBattleCancelled    EventType = "battle.cancelled"
	EventBattleExpired      EventType = "battle.expired"
	EventBattleReverted     EventType = "battle.reverted"
)

// Event is published after every committed state change. Subscribers may see
// duplicates or reordering and should reconcile on Version.
type Event struct {
	Type      EventType               `json:"type"`
	SessionID string                  `json:"session_id"`
	Version   int64                   `json:"version"`
	Status    entities.BattleStatus   `json:"status"`
	Round     int                     `json:"round"`
	Snapshot  *entities.BattleSession `json:"snapshot,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Notifier delivers events to external subscribers. Publish must not block.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// Fanout publishes every event to each of its notifiers
type Fanout []Notifier

// Publish implements Notifier
func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, n := range f {
		if n != nil {
			n.Publish(ctx, event)
		}
	}
}

// Nop discards every event
type Nop struct{}

// Publish implements Notifier
func (Nop) Publish(context.Context, Event) {}
