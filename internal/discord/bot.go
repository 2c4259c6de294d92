package discord

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/hubdoor/service"
)

const commandName = "open"

type BotConfig struct {
	GuildID   string
	ChannelID string
	// DryRun logs replies instead of sending them.
	DryRun bool
}

// Bot answers the "open" command in the door channel.
type Bot struct {
	door   *service.DoorService
	cfg    BotConfig
	logger *zap.Logger
	tag    atomic.Pointer[string] // our own user tag, the agent in the door log
}

func NewBot(door *service.DoorService, cfg BotConfig, logger *zap.Logger) *Bot {
	b := &Bot{door: door, cfg: cfg, logger: logger.Named("bot")}
	tag := "door bot"
	b.tag.Store(&tag)
	return b
}

// Attach registers the gateway handlers on s. Call it before s.Open.
func (b *Bot) Attach(s *discordgo.Session) {
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessage)
	s.AddHandler(b.onInteraction)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	tag := r.User.String()
	b.tag.Store(&tag)
	b.logger.Info("discord bot ready", zap.String("tag", tag))

	_, err := s.ApplicationCommandCreate(r.User.ID, b.cfg.GuildID, &discordgo.ApplicationCommand{
		Name:        commandName,
		Description: "Open the door",
	})
	if err != nil {
		b.logger.Warn("register slash command failed", zap.Error(err))
	}
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	reply, ok := b.HandleMessage(context.Background(), m)
	if !ok {
		return
	}
	if b.cfg.DryRun {
		b.logger.Info("dry run reply", zap.String("reply", reply))
		return
	}
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		b.logger.Warn("reply failed", zap.Error(err))
	}
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.ApplicationCommandData().Name != commandName {
		return
	}

	msg := "This command only works in the door channel."
	if i.ChannelID == b.cfg.ChannelID {
		var user *discordgo.User
		if i.Member != nil {
			user = i.Member.User
		} else {
			user = i.User
		}
		msg = b.decide(context.Background(), user, i.Member)
	}

	if b.cfg.DryRun {
		b.logger.Info("dry run reply", zap.String("reply", msg))
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg},
	})
	if err != nil {
		b.logger.Warn("interaction reply failed", zap.Error(err))
	}
}

// HandleMessage decides whether m is an "open" command for this bot and,
// if so, runs it and returns the reply.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.MessageCreate) (string, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return "", false
	}
	if m.ChannelID != b.cfg.ChannelID {
		return "", false
	}
	if !strings.EqualFold(strings.TrimSpace(m.Content), commandName) {
		return "", false
	}
	return b.decide(ctx, m.Author, m.Member), true
}

func (b *Bot) decide(ctx context.Context, u *discordgo.User, member *discordgo.Member) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reply := b.door.OpenWithChat(ctx, service.ChatRequest{Profile: profileOf(u, member), Agent: *b.tag.Load()})
	return reply.Message
}
