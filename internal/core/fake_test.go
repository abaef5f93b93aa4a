package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	botID   = "100"
	ownerID = "1"
)

type sent struct {
	ChannelID string
	Content   string
	Embed     *discordgo.MessageEmbed
}

type reaction struct {
	MessageID string
	Emoji     string
}

// fakeGateway records outbound traffic.
type fakeGateway struct {
	mu          sync.Mutex
	sent        []sent
	reactions   []reaction
	botPerms    int64
	memberPerms map[string]int64
	sendErr     error
	seq         int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		botPerms:    discordgo.PermissionSendMessages | discordgo.PermissionAddReactions | discordgo.PermissionEmbedLinks,
		memberPerms: map[string]int64{},
	}
}

func (g *fakeGateway) SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.seq++
	g.sent = append(g.sent, sent{ChannelID: channelID, Content: content})
	return &discordgo.Message{ID: fmt.Sprintf("m%d", g.seq), ChannelID: channelID, Content: content, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.sent = append(g.sent, sent{ChannelID: channelID, Embed: embed})
	return &discordgo.Message{ID: fmt.Sprintf("m%d", g.seq), ChannelID: channelID, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions = append(g.reactions, reaction{MessageID: messageID, Emoji: emoji})
	return nil
}

func (g *fakeGateway) BotPermissions(channelID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botPerms, nil
}

func (g *fakeGateway) MemberPermissions(channelID, userID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.memberPerms[userID], nil
}

func (g *fakeGateway) User(ctx context.Context, userID string) (*discordgo.User, error) {
	return &discordgo.User{ID: userID, Username: "user" + userID}, nil
}

func (g *fakeGateway) Self() *discordgo.User {
	return &discordgo.User{ID: botID, Username: "basicbot", Bot: true}
}

func (g *fakeGateway) Latency() time.Duration { return 42 * time.Millisecond }

func (g *fakeGateway) texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.sent {
		if s.Embed == nil {
			out = append(out, s.Content)
		}
	}
	return out
}

func (g *fakeGateway) emojis() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, r := range g.reactions {
		out = append(out, r.Emoji)
	}
	return out
}

type staticPrefixes map[string][]string

func (s staticPrefixes) GuildPrefixes(guildID string) []string { return s[guildID] }

func guildMessage(authorID, content string) Inbound {
	return Inbound{Message: &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		GuildID:   "42",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "user" + authorID},
		Timestamp: time.Now(),
	}}
}

func directMessage(authorID, content string) Inbound {
	in := guildMessage(authorID, content)
	in.Message.GuildID = ""
	in.Direct = true
	return in
}
