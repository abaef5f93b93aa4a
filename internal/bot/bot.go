// Package bot holds the process-wide state of the bot: configuration,
// loggers, the command registry and router, the owner and the last debug
// result. Extensions receive the Bot when they are built.
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/basicbot/internal/config"
	"github.com/keshon/basicbot/internal/core"
	"github.com/rs/zerolog"
)

// EmbedColor is used for every embed the bot sends.
const EmbedColor = 0xb01e66

// PrefixStore is the persisted per-guild prefix table.
type PrefixStore interface {
	GuildPrefixes(guildID string) []string
	AddPrefix(guildID, prefix string) error
	RemovePrefix(guildID, prefix string) error
}

// Options wires a Bot. Extensions defaults to the package catalog.
type Options struct {
	Config     *config.Config
	Gateway    core.Gateway
	Prefixes   PrefixStore
	Log        zerolog.Logger
	DMs        zerolog.Logger
	Extensions map[string]Builder
	Now        func() time.Time
}

type Bot struct {
	cfg      atomic.Pointer[config.Config]
	log      zerolog.Logger
	dms      zerolog.Logger
	gateway  core.Gateway
	prefixes PrefixStore
	catalog  map[string]Builder

	registry  *core.Registry
	resolver  *core.PrefixResolver
	router    *core.Router
	cooldowns *core.Cooldowns

	started time.Time
	now     func() time.Time

	mu         sync.Mutex
	owner      string
	lastResult any
}

// New builds the bot and registers the built-in commands. Nothing is
// loaded and nothing touches the network.
func New(opts Options) (*Bot, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bot: gateway is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Bot{
		log:      opts.Log,
		dms:      opts.DMs,
		gateway:  opts.Gateway,
		prefixes: opts.Prefixes,
		catalog:  opts.Extensions,
		started:  opts.Now(),
		now:      opts.Now,
		owner:    opts.Config.OwnerID,
	}
	b.cfg.Store(opts.Config)

	b.registry = core.NewRegistry(b, b.log)
	b.resolver = core.NewPrefixResolver(prefixSource{b.prefixes}, b.gateway)
	b.cooldowns = core.NewCooldowns()
	b.router = core.NewRouter(core.RouterConfig{
		Registry:  b.registry,
		Prefixes:  b.resolver,
		Gateway:   b.gateway,
		Reporter:  core.NewReporter(b.log),
		Cooldowns: b.cooldowns,
		IsOwner:   b.IsOwner,
		Middlewares: []core.Middleware{
			core.WithCommandLogger(b.log),
			core.WithRecover(),
		},
		Log: b.log,
	})

	if err := b.registry.RegisterBuiltin(b.builtins()...); err != nil {
		return nil, fmt.Errorf("failed to register built-in commands: %w", err)
	}
	return b, nil
}

// prefixSource lets a nil store read as "no prefixes anywhere".
type prefixSource struct{ store PrefixStore }

func (p prefixSource) GuildPrefixes(guildID string) []string {
	if p.store == nil {
		return nil
	}
	return p.store.GuildPrefixes(guildID)
}

func (b *Bot) Config() *config.Config { return b.cfg.Load() }

func (b *Bot) Log() *zerolog.Logger { return &b.log }

func (b *Bot) Gateway() core.Gateway { return b.gateway }

func (b *Bot) Prefixes() PrefixStore { return b.prefixes }

func (b *Bot) Registry() *core.Registry { return b.registry }

func (b *Bot) Router() *core.Router { return b.router }

func (b *Bot) Cooldowns() *core.Cooldowns { return b.cooldowns }

// Started is when the bot was constructed.
func (b *Bot) Started() time.Time { return b.started }

// Uptime is the time since Started, rounded to seconds.
func (b *Bot) Uptime() time.Duration { return b.now().Sub(b.started).Round(time.Second) }

// Latency is the gateway heartbeat latency.
func (b *Bot) Latency() time.Duration { return b.gateway.Latency() }

// Loaded lists the loaded extensions.
func (b *Bot) Loaded() []string { return b.registry.Loaded() }

func (b *Bot) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}

// SetOwner replaces the owner id. An empty id is ignored.
func (b *Bot) SetOwner(id string) {
	if id == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = id
}

func (b *Bot) IsOwner(userID string) bool {
	owner := b.Owner()
	return owner != "" && owner == userID
}

// LastResult is the previous non-nil debug result.
func (b *Bot) LastResult() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastResult
}

func (b *Bot) setLastResult(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastResult = v
}

// HandleMessage logs direct messages and routes the message.
func (b *Bot) HandleMessage(ctx context.Context, in core.Inbound) {
	if in.Direct && in.Message != nil && in.Message.Author != nil {
		b.logDirect(in)
	}
	b.router.Dispatch(ctx, in)
}

func (b *Bot) logDirect(in core.Inbound) {
	msg := in.Message
	if self := b.gateway.Self(); self != nil && msg.Author.ID == self.ID {
		recipient := "unknown"
		if in.Recipient != nil {
			recipient = userTag(in.Recipient)
		}
		b.dms.Info().Str("channel", msg.ChannelID).Msgf("Sending a DM to %s\n%s", recipient, msg.Content)
		return
	}
	b.dms.Info().Str("channel", msg.ChannelID).Msgf("New DM from %s\n%s", userTag(msg.Author), msg.Content)
}

func userTag(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Ready is called once the gateway session is established. appOwner is the
// application owner reported by Discord; it is used when no owner is
// configured.
func (b *Bot) Ready(ctx context.Context, self *discordgo.User, appOwner string) {
	if b.Owner() == "" && appOwner != "" {
		b.SetOwner(appOwner)
		b.log.Info().Str("owner", appOwner).Msg("Owner taken from application info")
	}
	if self != nil {
		b.log.Info().Msg("Logged in as")
		b.log.Info().Msg(self.Username)
		b.log.Info().Msg(self.ID)
	}
	b.log.Info().Msgf("%d commands", len(b.registry.Commands()))
	b.log.Info().Msg("------")
}

// LoadAutoExtensions loads every extension named in auto_load. Failures are
// logged and skipped.
func (b *Bot) LoadAutoExtensions(ctx context.Context) {
	for _, name := range b.Config().AutoLoad {
		if err := b.registry.Load(ctx, name); err != nil {
			b.log.Info().Msgf("Failed to load extension %s\n%T: %v", name, err, err)
			continue
		}
		b.log.Info().Msgf("Successfully loaded %s", name)
	}
}
