package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/caseclash/internal/discord"
	"github.com/fadedpez/caseclash/internal/logging"
	"github.com/fadedpez/caseclash/pkg/entities"
)

const (
	colorFinished  = 0x2ecc71
	colorCancelled = 0xe67e22
	colorExpired   = 0x95a5a6
)

// DiscordAnnouncer posts terminal battle results to a Discord channel
type DiscordAnnouncer struct {
	session   discord.SessionHandler
	channelID string
	logger    *logging.Logger
	send      func(func())
}

// NewDiscordAnnouncer creates an announcer that posts to channelID
func NewDiscordAnnouncer(session discord.SessionHandler, channelID string) *DiscordAnnouncer {
	return &DiscordAnnouncer{
		session:   session,
		channelID: channelID,
		logger:    logging.Default.WithField("component", "discord"),
		send:      func(fn func()) { go fn() },
	}
}

// Publish implements Notifier. Only finished, cancelled and expired battles
// are announced.
func (d *DiscordAnnouncer) Publish(_ context.Context, event Event) {
	if event.Snapshot == nil {
		return
	}

	var embed *discordgo.MessageEmbed
	switch event.Type {
	case EventBattleFinished:
		embed = finishedEmbed(event.Snapshot)
	case EventBattleCancelled:
		embed = &discordgo.MessageEmbed{
			Title:       "Battle cancelled",
			Description: fmt.Sprintf("Battle `%s` was cancelled: %s. Entry fees have been refunded.", event.SessionID, reasonOrUnknown(event.Snapshot.CancelReason)),
			Color:       colorCancelled,
		}
	case EventBattleExpired:
		embed = &discordgo.MessageEmbed{
			Title:       "Battle expired",
			Description: fmt.Sprintf("Battle `%s` did not fill before the lobby closed.", event.SessionID),
			Color:       colorExpired,
		}
	default:
		return
	}

	d.send(func() {
		if _, err := d.session.ChannelMessageSendEmbed(d.channelID, embed); err != nil {
			d.logger.WithField("session_id", event.SessionID).Warn("Failed to announce battle: %v", err)
		}
	})
}

func finishedEmbed(b *entities.BattleSession) *discordgo.MessageEmbed {
	type row struct {
		seat   int
		name   string
		value  string
		payout int64
	}
	rows := make([]row, 0, len(b.Participants))
	for _, p := range b.Participants {
		name := p.UserID
		if p.IsBot {
			name = fmt.Sprintf("Bot %d", p.Seat+1)
		}
		if p.Forfeited {
			name += " (forfeited)"
		}
		rows = append(rows, row{
			seat:   p.Seat,
			name:   name,
			value:  p.AccumulatedValue.StringFixed(2),
			payout: b.Payouts[p.ID],
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seat < rows[j].seat })

	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%s: %s", r.name, r.value)
		if r.payout > 0 {
			fmt.Fprintf(&sb, " wins **%d**", r.payout)
		}
		sb.WriteString("\n")
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s battle finished", capitalize(string(b.Mode))),
		Description: sb.String(),
		Color:       colorFinished,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Rounds", Value: fmt.Sprintf("%d", b.TotalRounds()), Inline: true},
			{Name: "Pool", Value: fmt.Sprintf("%d", b.Pool()), Inline: true},
		},
	}
}

func reasonOrUnknown(reason string) string {
	if reason == "" {
		return "no reason given"
	}
	return reason
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
