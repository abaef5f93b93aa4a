package core

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

const (
	EmojiOK       = "✅"
	EmojiCooldown = "⏰"
	EmojiUnknown  = "❓"
	EmojiMuted    = "\U0001f507"
	EmojiCross    = "❌"
	EmojiWarning  = "⚠"
)

// Context is created for one dispatch and dropped afterwards.
type Context struct {
	Message     *discordgo.Message
	Direct      bool
	Command     *Command
	Prefix      string
	InvokedWith string
	RawArgs     string
	Args        Args
	IsOwner     bool
	DispatchID  string

	gateway Gateway
}

// NewContext binds a message to a gateway. The router fills the rest.
func NewContext(in Inbound, gw Gateway) *Context {
	return &Context{Message: in.Message, Direct: in.Direct, gateway: gw}
}

func (c *Context) Gateway() Gateway { return c.gateway }

func (c *Context) Author() *discordgo.User { return c.Message.Author }

func (c *Context) GuildID() string { return c.Message.GuildID }

func (c *Context) ChannelID() string { return c.Message.ChannelID }

// Send posts content to the invoking channel.
func (c *Context) Send(ctx context.Context, content string) (*discordgo.Message, error) {
	return c.gateway.SendMessage(ctx, c.Message.ChannelID, content)
}

// SendEmbed posts an embed to the invoking channel.
func (c *Context) SendEmbed(ctx context.Context, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return c.gateway.SendEmbed(ctx, c.Message.ChannelID, embed)
}

// React adds a reaction to the invoking message.
func (c *Context) React(ctx context.Context, emoji string) error {
	return c.gateway.AddReaction(ctx, c.Message.ChannelID, c.Message.ID, emoji)
}

// ReactOrFalse adds the given reactions (✅ by default) if the bot may react
// here. Individual failures are ignored. It reports whether reacting was
// permitted at all, so callers can fall back to a text reply.
func (c *Context) ReactOrFalse(ctx context.Context, emojis ...string) bool {
	if !c.BotCan(discordgo.PermissionAddReactions) {
		return false
	}
	if len(emojis) == 0 {
		emojis = []string{EmojiOK}
	}
	for _, e := range emojis {
		_ = c.React(ctx, e)
	}
	return true
}

// BotCan reports whether the bot holds perm in the invoking channel.
func (c *Context) BotCan(perm int64) bool {
	perms, err := c.gateway.BotPermissions(c.Message.ChannelID)
	if err != nil {
		return false
	}
	return hasPermission(perms, perm)
}

// AuthorCan reports whether the invoking user holds perm in the channel.
func (c *Context) AuthorCan(perm int64) bool {
	if c.Message.Author == nil {
		return false
	}
	perms, err := c.gateway.MemberPermissions(c.Message.ChannelID, c.Message.Author.ID)
	if err != nil {
		return false
	}
	return hasPermission(perms, perm)
}

func hasPermission(perms, perm int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&perm == perm
}
