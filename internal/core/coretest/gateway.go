// Package coretest provides an in-memory core.Gateway for tests.
package coretest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/basicbot/internal/core"
)

const (
	BotID   = "100"
	OwnerID = "1"
	GuildID = "42"
)

// DefaultBotPermissions lets the bot send, react and embed.
const DefaultBotPermissions = discordgo.PermissionSendMessages |
	discordgo.PermissionAddReactions |
	discordgo.PermissionEmbedLinks

// Sent is one outbound message.
type Sent struct {
	ChannelID string
	Content   string
	Embed     *discordgo.MessageEmbed
}

// Gateway records everything sent through it.
type Gateway struct {
	mu        sync.Mutex
	sent      []Sent
	reactions []string
	seq       int

	BotPerms int64
	Admins   map[string]bool
	Users    map[string]*discordgo.User
}

var _ core.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{
		BotPerms: DefaultBotPermissions,
		Admins:   map[string]bool{},
		Users:    map[string]*discordgo.User{},
	}
}

func (g *Gateway) SendMessage(_ context.Context, channelID, content string) (*discordgo.Message, error) {
	return g.record(Sent{ChannelID: channelID, Content: content}), nil
}

func (g *Gateway) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return g.record(Sent{ChannelID: channelID, Embed: embed}), nil
}

func (g *Gateway) record(s Sent) *discordgo.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.sent = append(g.sent, s)
	return &discordgo.Message{
		ID:        fmt.Sprintf("m%d", g.seq),
		ChannelID: s.ChannelID,
		Content:   s.Content,
		Timestamp: time.Now(),
	}
}

func (g *Gateway) AddReaction(_ context.Context, _, _, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions = append(g.reactions, emoji)
	return nil
}

func (g *Gateway) BotPermissions(string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.BotPerms, nil
}

// MemberPermissions grants Administrator to users listed in Admins.
func (g *Gateway) MemberPermissions(_, userID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Admins[userID] {
		return discordgo.PermissionAdministrator, nil
	}
	return discordgo.PermissionSendMessages, nil
}

func (g *Gateway) User(_ context.Context, userID string) (*discordgo.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u, ok := g.Users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("unknown user %s", userID)
}

func (g *Gateway) Self() *discordgo.User {
	return &discordgo.User{ID: BotID, Username: "basicbot", Bot: true}
}

func (g *Gateway) Latency() time.Duration { return 42 * time.Millisecond }

// Texts returns the plain messages sent so far.
func (g *Gateway) Texts() []string {
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

// Embeds returns the embeds sent so far.
func (g *Gateway) Embeds() []*discordgo.MessageEmbed {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*discordgo.MessageEmbed
	for _, s := range g.sent {
		if s.Embed != nil {
			out = append(out, s.Embed)
		}
	}
	return out
}

func (g *Gateway) Reactions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.reactions)
}

func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
	g.reactions = nil
}

// GuildMessage is a message in guild GuildID.
func GuildMessage(authorID, content string) core.Inbound {
	return core.Inbound{Message: &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		GuildID:   GuildID,
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "user" + authorID},
		Timestamp: time.Now(),
	}}
}

// DirectMessage is a message in a one-to-one channel with authorID.
func DirectMessage(authorID, content string) core.Inbound {
	in := GuildMessage(authorID, content)
	in.Message.GuildID = ""
	in.Message.ChannelID = "dm-" + authorID
	in.Direct = true
	return in
}
