// Package core is the "core" extension: help and per-guild prefix
// management.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/basicbot/internal/bot"
	"github.com/keshon/basicbot/internal/config"
	"github.com/keshon/basicbot/internal/core"
	"github.com/keshon/basicbot/internal/storage"
	"github.com/keshon/basicbot/internal/version"
)

const Name = "core"

func init() {
	bot.RegisterExtension(Name, New)
}

type cog struct {
	b *bot.Bot
}

// New builds the extension for b.
func New(b *bot.Bot) (*core.Cog, error) {
	c := &cog{b: b}
	prefix := []core.Param{{Name: "prefix", Kind: core.ParamString}}

	return &core.Cog{
		Commands: []*core.Command{
			{
				Name:        "help",
				Description: "Get a list of available commands",
				Category:    config.CategoryInformation,
				Handler:     c.help,
			},
			{
				Name:        "prefixes",
				Aliases:     []string{"prefix"},
				Description: "Lists prefixes",
				Category:    config.CategorySettings,
				Handler:     c.prefixes,
			},
			{
				Name:        "setprefix",
				Aliases:     []string{"addprefix"},
				Description: "Sets prefix for the bot in this server",
				Category:    config.CategorySettings,
				Params:      prefix,
				Handler:     c.setPrefix,
			},
			{
				Name:        "removeprefix",
				Description: "Removes prefix for the bot from this server",
				Category:    config.CategorySettings,
				Params:      prefix,
				Handler:     c.removePrefix,
			},
		},
	}, nil
}

func (c *cog) help(ctx context.Context, cc *core.Context) error {
	if cc.BotCan(discordgo.PermissionEmbedLinks) {
		embed := &discordgo.MessageEmbed{
			Title:       version.AppName + " Help",
			Description: helpByCategory(c.b.Registry().Commands()),
			Color:       bot.EmbedColor,
		}
		if _, err := cc.SendEmbed(ctx, embed); err != nil {
			return err
		}
	}
	_, err := cc.Send(ctx, fmt.Sprintf("This bot is useless anyway tho....\nJust ask %s for help instead", c.ownerName(ctx)))
	return err
}

func (c *cog) ownerName(ctx context.Context) string {
	id := c.b.Owner()
	if id == "" {
		return "the owner"
	}
	u, err := c.b.Gateway().User(ctx, id)
	if err != nil || u == nil {
		c.b.Log().Debug().Err(err).Str("owner", id).Msg("Failed to fetch owner")
		return "<@" + id + ">"
	}
	return u.Username
}

// helpByCategory lists visible commands grouped by category, categories by
// weight and commands by name.
func helpByCategory(cmds []*core.Command) string {
	byCategory := map[string][]*core.Command{}
	for _, cmd := range cmds {
		if cmd.Hidden {
			continue
		}
		byCategory[cmd.Category] = append(byCategory[cmd.Category], cmd)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		wi, wj := config.CategoryWeight(categories[i]), config.CategoryWeight(categories[j])
		if wi != wj {
			return wi < wj
		}
		return categories[i] < categories[j]
	})

	var sb strings.Builder
	for _, cat := range categories {
		title := cat
		if title == "" {
			title = "Other"
		}
		fmt.Fprintf(&sb, "**%s**\n", title)
		list := byCategory[cat]
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		for _, cmd := range list {
			fmt.Fprintf(&sb, "`%s` - %s\n", cmd.Name, cmd.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func (c *cog) prefixes(ctx context.Context, cc *core.Context) error {
	if cc.Direct {
		_, err := cc.Send(ctx, "There's no need for any prefix in DMs")
		return err
	}
	if !cc.BotCan(discordgo.PermissionEmbedLinks) {
		return core.Checkf("Bot requires Embed Links permission(s) to run this command.")
	}

	var list []string
	if store := c.b.Prefixes(); store != nil {
		list = store.GuildPrefixes(cc.GuildID())
	}

	embed := &discordgo.MessageEmbed{
		Color: bot.EmbedColor,
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "Prefixes for this server are",
			Value: formatPrefixes(list),
		}},
		Footer: &discordgo.MessageEmbedFooter{Text: "You can also just mention me"},
	}
	_, err := cc.SendEmbed(ctx, embed)
	return err
}

// formatPrefixes numbers the prefixes. One with surrounding whitespace is
// shown in angle brackets so the whitespace stays visible.
func formatPrefixes(list []string) string {
	if len(list) == 0 {
		return "No prefixes"
	}
	var sb strings.Builder
	for i, p := range list {
		if strings.TrimSpace(p) != p {
			fmt.Fprintf(&sb, "(No <>) **%d.** <%s>\n", i+1, p)
			continue
		}
		fmt.Fprintf(&sb, "**%d.** %s\n", i+1, p)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *cog) setPrefix(ctx context.Context, cc *core.Context) error {
	store, err := c.prefixStore(cc)
	if err != nil {
		return err
	}
	p := cc.Args.String("prefix")
	if err := store.AddPrefix(cc.GuildID(), p); err != nil {
		return prefixError(err)
	}
	c.b.Log().Info().Str("guild", cc.GuildID()).Str("prefix", p).Msg("Prefix added")
	return acknowledge(ctx, cc, fmt.Sprintf("Added prefix `%s`.", p))
}

func (c *cog) removePrefix(ctx context.Context, cc *core.Context) error {
	store, err := c.prefixStore(cc)
	if err != nil {
		return err
	}
	p := cc.Args.String("prefix")
	if err := store.RemovePrefix(cc.GuildID(), p); err != nil {
		return prefixError(err)
	}
	c.b.Log().Info().Str("guild", cc.GuildID()).Str("prefix", p).Msg("Prefix removed")
	return acknowledge(ctx, cc, fmt.Sprintf("Removed prefix `%s`.", p))
}

// prefixStore checks that the author may edit this guild's prefixes:
// administrators and the owner only, and never in a DM.
func (c *cog) prefixStore(cc *core.Context) (bot.PrefixStore, error) {
	if cc.Direct || !(cc.IsOwner || cc.AuthorCan(discordgo.PermissionAdministrator)) {
		return nil, core.Checkf("You can't change the prefix")
	}
	store := c.b.Prefixes()
	if store == nil {
		return nil, errors.New("prefix storage is not configured")
	}
	return store, nil
}

func prefixError(err error) error {
	if errors.Is(err, storage.ErrPrefixInvalid) ||
		errors.Is(err, storage.ErrPrefixExists) ||
		errors.Is(err, storage.ErrPrefixNotFound) {
		return &core.UserInputError{Param: "prefix", Reason: err.Error()}
	}
	return err
}

func acknowledge(ctx context.Context, cc *core.Context, fallback string) error {
	if cc.ReactOrFalse(ctx) {
		return nil
	}
	_, err := cc.Send(ctx, fallback)
	return err
}
