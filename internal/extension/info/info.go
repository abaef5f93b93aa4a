// Package info is the "info" extension: what the bot is and how long it has
// been running.
package info

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/basicbot/internal/bot"
	"github.com/keshon/basicbot/internal/config"
	"github.com/keshon/basicbot/internal/core"
	"github.com/keshon/basicbot/internal/version"
)

const Name = "info"

func init() {
	bot.RegisterExtension(Name, New)
}

func New(b *bot.Bot) (*core.Cog, error) {
	return &core.Cog{
		Commands: []*core.Command{
			{
				Name:        "about",
				Description: "Shows info about the bot.",
				Category:    config.CategoryInformation,
				Handler:     func(ctx context.Context, c *core.Context) error { return about(ctx, b, c) },
			},
			{
				Name:        "uptime",
				Description: "Shows how long the bot has been running.",
				Category:    config.CategoryInformation,
				Handler:     func(ctx context.Context, c *core.Context) error { return uptime(ctx, b, c) },
			},
		},
	}, nil
}

func about(ctx context.Context, b *bot.Bot, c *core.Context) error {
	loaded := strings.Join(b.Loaded(), ", ")
	if loaded == "" {
		loaded = "none"
	}

	if !c.BotCan(discordgo.PermissionEmbedLinks) {
		_, err := c.Send(ctx, fmt.Sprintf("**%s** — %s\nRelease: %s\nExtensions: %s",
			version.AppName, version.AppDescription, release(), loaded))
		return err
	}

	_, err := c.SendEmbed(ctx, &discordgo.MessageEmbed{
		Color:       bot.EmbedColor,
		Description: fmt.Sprintf("ℹ️ About\n\n**%s** — %s", version.AppName, version.AppDescription),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Release", Value: release()},
			{Name: "Extensions", Value: loaded},
		},
	})
	return err
}

// release renders the build date and Go version stamped at link time.
func release() string {
	buildDate := "unknown"
	if version.BuildDate != "" {
		if t, err := time.Parse(time.RFC3339, version.BuildDate); err == nil {
			buildDate = t.Format("2006-01-02")
		} else {
			buildDate = "invalid date"
		}
	}

	goVer := "unknown"
	if version.GoVersion != "" {
		goVer = strings.TrimPrefix(version.GoVersion, "go")
	}

	out := fmt.Sprintf("%s (Go %s)", buildDate, goVer)
	if version.Commit != "" {
		out += " " + version.Commit
	}
	return out
}

func uptime(ctx context.Context, b *bot.Bot, c *core.Context) error {
	_, err := c.Send(ctx, fmt.Sprintf("Up for %s, since %s", b.Uptime(), b.Started().UTC().Format(time.DateTime)))
	return err
}
