package discord

import (
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/commonshub/hubdoor/internal/hubdoor/service"
	"github.com/commonshub/hubdoor/internal/hubdoor/types"
)

// groupByRole appends the ids of page's members to into, under each
// wanted role they hold.
func groupByRole(into map[string][]string, page []*discordgo.Member, roleIDs []string) {
	for _, m := range page {
		if m == nil || m.User == nil {
			continue
		}
		for _, id := range roleIDs {
			if slices.Contains(m.Roles, id) {
				into[id] = append(into[id], m.User.ID)
			}
		}
	}
}

// profileOf prefers the guild nickname, then the global display name,
// then the username.
func profileOf(u *discordgo.User, m *discordgo.Member) types.Profile {
	if u == nil && m != nil {
		u = m.User
	}
	if u == nil {
		return types.Profile{}
	}
	p := types.Profile{
		ID:          u.ID,
		DisplayName: u.Username,
		Username:    u.Username,
		AvatarURL:   u.AvatarURL(""),
	}
	if u.GlobalName != "" {
		p.DisplayName = u.GlobalName
	}
	if m != nil && m.Nick != "" {
		p.DisplayName = m.Nick
	}
	return p
}

func factsFrom(msgs []*discordgo.Message) []service.Fact {
	facts := make([]service.Fact, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Type != discordgo.MessageTypeDefault {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		reactions := 0
		for _, r := range m.Reactions {
			reactions += r.Count
		}
		facts = append(facts, service.Fact{Text: text, CreatedAt: m.Timestamp, Reactions: reactions})
	}
	return facts
}
