// Package core routes Discord messages to commands. Commands are plain
// records grouped into cogs; cogs are loaded and unloaded at runtime through
// the Registry and messages are matched against them by the Router.
package core

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc runs a command.
type HandlerFunc func(ctx context.Context, c *Context) error

type ParamKind int

const (
	ParamString ParamKind = iota // a single word or a "quoted string"
	ParamInt                     // a base-10 integer
	ParamRest                    // everything that is left, verbatim
)

// Param declares one argument of a command.
type Param struct {
	Name     string
	Kind     ParamKind
	Optional bool
}

// Cooldown allows Rate invocations per user within Per.
type Cooldown struct {
	Rate int
	Per  time.Duration
}

// Command is a single invocable entry. Name and every alias must be unique
// across the whole registry.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Category    string
	Params      []Param
	Handler     HandlerFunc
	Hidden      bool
	OwnerOnly   bool
	Cooldown    *Cooldown

	// Extension is the owning cog; empty for built-in commands.
	Extension string
}

// Cog is a bundle of commands that is loaded and unloaded as a unit.
type Cog struct {
	Name     string
	Commands []*Command

	// Setup runs after the cog's commands are validated. A failing Setup
	// aborts the load.
	Setup func(ctx context.Context) error
	// Teardown runs when the cog is unloaded or replaced.
	Teardown func()
}

// Gateway is what the router needs from the chat connection.
type Gateway interface {
	SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error)
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// BotPermissions returns the bot's effective permissions in a channel.
	BotPermissions(channelID string) (int64, error)
	// MemberPermissions returns a user's effective permissions in a channel.
	MemberPermissions(channelID, userID string) (int64, error)

	User(ctx context.Context, userID string) (*discordgo.User, error)
	Self() *discordgo.User
	Latency() time.Duration
}

// Inbound is a message as delivered by the gateway.
type Inbound struct {
	Message *discordgo.Message
	Direct  bool // one-to-one channel

	// Recipient is the other party of a direct channel, when known.
	Recipient *discordgo.User
}
