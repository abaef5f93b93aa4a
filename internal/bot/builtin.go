package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/basicbot/internal/config"
	"github.com/keshon/basicbot/internal/core"
	"github.com/keshon/basicbot/internal/debug"
)

func (b *Bot) builtins() []*core.Command {
	return []*core.Command{
		{
			Name:        "reload",
			Aliases:     []string{"reloadall", "loadall"},
			Description: "Reload loaded extensions and the ones under auto_load.",
			Category:    config.CategoryMaintenance,
			Hidden:      true,
			OwnerOnly:   true,
			Handler:     b.reloadCommand,
		},
		{
			Name:        "load",
			Description: "Load an extension.",
			Category:    config.CategoryMaintenance,
			Params:      []core.Param{{Name: "extension", Kind: core.ParamRest}},
			Hidden:      true,
			OwnerOnly:   true,
			Handler:     b.loadCommand,
		},
		{
			Name:        "unload",
			Description: "Unload an extension.",
			Category:    config.CategoryMaintenance,
			Params:      []core.Param{{Name: "extension", Kind: core.ParamRest}},
			Hidden:      true,
			OwnerOnly:   true,
			Handler:     b.unloadCommand,
		},
		{
			Name:        "loadconfig",
			Aliases:     []string{"reloadconfig", "reloadjson", "loadjson"},
			Description: "Reload the config.",
			Category:    config.CategoryMaintenance,
			Hidden:      true,
			OwnerOnly:   true,
			Handler:     b.loadConfigCommand,
		},
		{
			Name:        core.DebugCommand,
			Description: "Evaluate an expression.",
			Category:    config.CategoryMaintenance,
			Params:      []core.Param{{Name: "command", Kind: core.ParamRest}},
			Hidden:      true,
			OwnerOnly:   true,
			Handler:     b.debugCommand,
		},
		{
			Name:        "latency",
			Aliases:     []string{"ping", "marco"},
			Description: "Reports bot latency.",
			Category:    config.CategoryInformation,
			Cooldown:    &core.Cooldown{Rate: 1, Per: time.Minute},
			Handler:     b.latencyCommand,
		},
	}
}

func (b *Bot) reloadCommand(ctx context.Context, c *core.Context) error {
	for _, st := range b.registry.ReloadAll(ctx, b.Config().AutoLoad) {
		if st.Err == nil {
			continue
		}
		if err := loadFailure(ctx, c, st.Extension, st.Err); err != nil {
			return err
		}
	}
	_, err := c.Send(ctx, "Reloaded already loaded cogs and cogs under auto_load")
	return err
}

func (b *Bot) loadCommand(ctx context.Context, c *core.Context) error {
	name := c.Args.String("extension")
	if err := b.registry.Load(ctx, name); err != nil {
		return loadFailure(ctx, c, name, err)
	}
	if c.ReactOrFalse(ctx) {
		return nil
	}
	_, err := c.Send(ctx, fmt.Sprintf("Loaded `%s`.", name))
	return err
}

// loadFailure tells the invoker why name did not load. Resolution failures
// and activation failures read differently.
func loadFailure(ctx context.Context, c *core.Context, name string, err error) error {
	var (
		re  *core.ResolutionError
		ae  *core.ActivationError
		msg string
	)
	switch {
	case errors.As(err, &re):
		msg = fmt.Sprintf("Can not load `%s` -> `%v`", name, re.Err)
	case errors.As(err, &ae):
		msg = fmt.Sprintf("%s Could not load `%s` -> `%v`", core.EmojiWarning, name, ae.Err)
		if ae.RollbackErr != nil {
			msg += fmt.Sprintf("\nThe previous version could not be restored either -> `%v`", ae.RollbackErr)
		}
	default:
		msg = fmt.Sprintf("%s Could not load `%s` -> `%v`", core.EmojiWarning, name, err)
	}
	_, serr := c.Send(ctx, msg)
	return serr
}

func (b *Bot) unloadCommand(ctx context.Context, c *core.Context) error {
	name := c.Args.String("extension")
	if err := b.registry.Unload(ctx, name); err != nil {
		b.log.Error().Err(err).Str("extension", name).Msg("unload failed")
		_, serr := c.Send(ctx, fmt.Sprintf("Could not unload `%s` -> `%v`", name, err))
		return serr
	}
	if c.ReactOrFalse(ctx) {
		return nil
	}
	_, err := c.Send(ctx, fmt.Sprintf("Unloaded `%s`.", name))
	return err
}

func (b *Bot) loadConfigCommand(ctx context.Context, c *core.Context) error {
	cfg, err := b.Config().Reload()
	if err != nil {
		_, serr := c.Send(ctx, fmt.Sprintf("Could not reload config: `%v`", err))
		return serr
	}
	b.cfg.Store(cfg)
	b.SetOwner(cfg.OwnerID)
	b.log.Info().Str("path", cfg.Path()).Msg("Config reloaded")

	if c.ReactOrFalse(ctx) {
		return nil
	}
	_, err = c.Send(ctx, "Successfully loaded config")
	return err
}

func (b *Bot) debugCommand(ctx context.Context, c *core.Context) error {
	b.log.Trace().Str("dispatch", c.DispatchID).Msg("Running debug command: " + c.Message.Content)

	res := debug.Evaluate(ctx, b.debugEnv(c), c.Args.String("command"))
	if res.Err == nil && res.Value != nil {
		b.setLastResult(res.Value)
	}

	out := debug.Render(res, b.Config().Secrets(), c.BotCan(discordgo.PermissionEmbedLinks))
	if out.Embed != nil {
		_, err := c.SendEmbed(ctx, out.Embed)
		return err
	}
	_, err := c.Send(ctx, out.Text)
	return err
}

func (b *Bot) debugEnv(c *core.Context) debug.Env {
	return debug.Env{
		"bot":            b,
		"ctx":            c,
		"channel":        c.ChannelID(),
		"author":         c.Author(),
		"guild":          c.GuildID(),
		"message":        c.Message,
		debug.LastResult: b.LastResult(),
	}
}

func (b *Bot) latencyCommand(ctx context.Context, c *core.Context) error {
	greeting := "\u200b"
	switch c.InvokedWith {
	case "ping":
		greeting = "Pong"
	case "marco":
		greeting = "Polo"
	}

	msg, err := c.Send(ctx, greeting)
	if err != nil {
		return err
	}
	took := msg.Timestamp.Sub(c.Message.Timestamp)
	_, err = c.Send(ctx, fmt.Sprintf("That took %dms. Discord reports latency of %dms",
		took.Milliseconds(), b.gateway.Latency().Milliseconds()))
	return err
}
