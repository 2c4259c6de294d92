// Package discord adapts a Discord guild to the door service: role member
// listing, role grants, channel notifications, member lookup, the fun-fact
// channel, and the "open" command.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/hubdoor/service"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

// pageSize is the largest page the member list endpoint returns.
const pageSize = 1000

type Config struct {
	Token            string
	GuildID          string
	ChannelID        string // door channel: notifications and the open command
	FunFactsChannel  string
	FunFactsPageSize int
}

// Client talks to one guild through the REST API and, once Open is
// called, the gateway.
type Client struct {
	s      *discordgo.Session
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" || cfg.GuildID == "" {
		return nil, errors.New("discord: token and guild id are required")
	}
	if cfg.FunFactsPageSize <= 0 {
		cfg.FunFactsPageSize = 100
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent
	return &Client{s: s, cfg: cfg, logger: logger.Named("discord")}, nil
}

func (c *Client) Session() *discordgo.Session { return c.s }

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.s.Open(); err != nil {
		return fmt.Errorf("discord gateway: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.s.Close() }

// MembersByRole pages through the guild member list once and returns, for
// each of roleIDs, the ids of members holding it.
func (c *Client) MembersByRole(ctx context.Context, roleIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return out, nil
	}
	var after string
	for {
		page, err := c.s.GuildMembers(c.cfg.GuildID, after, pageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		groupByRole(out, page, roleIDs)
		if len(page) < pageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) AddRole(ctx context.Context, principalID, roleID string) error {
	return c.s.GuildMemberRoleAdd(c.cfg.GuildID, principalID, roleID, discordgo.WithContext(ctx))
}

func (c *Client) RemoveRole(ctx context.Context, principalID, roleID string) error {
	return c.s.GuildMemberRoleRemove(c.cfg.GuildID, principalID, roleID, discordgo.WithContext(ctx))
}

// Notify posts msg to the door channel.
func (c *Client) Notify(ctx context.Context, msg string) error {
	if c.cfg.ChannelID == "" {
		return nil
	}
	_, err := c.s.ChannelMessageSend(c.cfg.ChannelID, msg, discordgo.WithContext(ctx))
	return err
}

// Member looks a guild member up, returning service.ErrUnknownPrincipal
// when the user is not in the guild.
func (c *Client) Member(ctx context.Context, principalID string) (types.Profile, error) {
	m, err := c.s.GuildMember(c.cfg.GuildID, principalID, discordgo.WithContext(ctx))
	if err != nil {
		var rerr *discordgo.RESTError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
			return types.Profile{}, service.ErrUnknownPrincipal
		}
		return types.Profile{}, err
	}
	return profileOf(m.User, m), nil
}

// RecentFacts reads the latest plain messages of the fun-facts channel.
func (c *Client) RecentFacts(ctx context.Context) ([]service.Fact, error) {
	if c.cfg.FunFactsChannel == "" {
		return nil, nil
	}
	msgs, err := c.s.ChannelMessages(c.cfg.FunFactsChannel, c.cfg.FunFactsPageSize, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fun facts channel: %w", err)
	}
	return factsFrom(msgs), nil
}
