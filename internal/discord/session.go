// Package discord connects the bot to the Discord gateway through discordgo
// and implements core.Gateway on top of the session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/basicbot/internal/core"
	"github.com/keshon/basicbot/pkg/retrylimit"
	"github.com/rs/zerolog"
)

// Intents the bot identifies with. Message content is privileged and must be
// enabled for the application.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// dmPermissions is what anyone holds in a one-to-one channel.
const dmPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionAddReactions |
	discordgo.PermissionReadMessageHistory

// Handler receives gateway events.
type Handler interface {
	HandleMessage(ctx context.Context, in core.Inbound)
	Ready(ctx context.Context, self *discordgo.User, appOwner string)
}

// Session is a discordgo session with retrying sends.
type Session struct {
	dg      *discordgo.Session
	log     zerolog.Logger
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config

	mu      sync.Mutex
	closing bool // set once Run starts shutting down
	wg      sync.WaitGroup
}

var _ core.Gateway = (*Session)(nil)

// New creates a session for a bot token. Nothing is opened yet.
func New(token string, log zerolog.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return Wrap(dg, log), nil
}

// Wrap adopts an existing discordgo session.
func Wrap(dg *discordgo.Session, log zerolog.Logger) *Session {
	dg.Identify.Intents = Intents
	// handlers fan out to their own goroutines
	dg.SyncEvents = true
	return &Session{
		dg:      dg,
		log:     log,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 50, 1, 0.5),
		retry:   retrylimit.DefaultConfig(log),
	}
}

// Run opens the gateway, feeds events to h and blocks until ctx ends. It
// waits for in-flight handlers before returning.
func (s *Session) Run(ctx context.Context, h Handler) error {
	removeMsg := s.dg.AddHandler(s.onMessageCreate(ctx, h))
	removeReady := s.dg.AddHandler(s.onReady(ctx, h))
	detach := func() {
		removeMsg()
		removeReady()
		s.stopDispatch()
	}

	if err := s.dg.Open(); err != nil {
		detach()
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	s.log.Info().Msg("Shutdown signal received, closing the gateway")
	detach()
	err := s.dg.Close()
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	return nil
}

func (s *Session) onMessageCreate(ctx context.Context, h Handler) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil {
			return
		}
		in := s.inbound(ctx, m.Message)
		s.dispatch(func() { h.HandleMessage(ctx, in) })
	}
}

func (s *Session) onReady(ctx context.Context, h Handler) func(*discordgo.Session, *discordgo.Ready) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		s.dispatch(func() { h.Ready(ctx, r.User, s.applicationOwner()) })
	}
}

// dispatch runs fn on its own goroutine unless the session is shutting
// down. Events that arrive during shutdown are dropped.
func (s *Session) dispatch(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// stopDispatch refuses new handler goroutines. Once it returns, wg only
// shrinks and may be waited on.
func (s *Session) stopDispatch() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

// applicationOwner asks Discord who owns the application: the team owner
// for team applications, the user otherwise.
func (s *Session) applicationOwner() string {
	app, err := s.dg.Application("@me")
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to fetch application info")
		return ""
	}
	if app.Team != nil && app.Team.OwnerID != "" {
		return app.Team.OwnerID
	}
	if app.Owner != nil {
		return app.Owner.ID
	}
	return ""
}

// inbound classifies a message. A message without a guild came through a
// direct channel; its recipient is the other party.
func (s *Session) inbound(ctx context.Context, m *discordgo.Message) core.Inbound {
	in := core.Inbound{Message: m, Direct: m.GuildID == ""}
	if !in.Direct {
		return in
	}

	self := s.Self()
	if self == nil || m.Author.ID != self.ID {
		in.Recipient = m.Author
		return in
	}
	ch, err := s.channel(ctx, m.ChannelID)
	if err != nil {
		s.log.Debug().Err(err).Str("channel", m.ChannelID).Msg("Failed to fetch DM channel")
		return in
	}
	for _, u := range ch.Recipients {
		if u.ID != self.ID {
			in.Recipient = u
			break
		}
	}
	return in
}

func (s *Session) channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if ch, err := s.dg.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return s.dg.Channel(channelID, discordgo.WithContext(ctx))
}

func (s *Session) SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	var msg *discordgo.Message
	err := s.send(ctx, func() (err error) {
		msg, err = s.dg.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
		return err
	})
	return msg, err
}

func (s *Session) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	var msg *discordgo.Message
	err := s.send(ctx, func() (err error) {
		msg, err = s.dg.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
		return err
	})
	return msg, err
}

func (s *Session) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return s.send(ctx, func() error {
		return s.dg.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
	})
}

func (s *Session) send(ctx context.Context, fn func() error) error {
	return retrylimit.Do(ctx, s.limiter, s.retry, func() error { return withStatus(fn()) })
}

func (s *Session) BotPermissions(channelID string) (int64, error) {
	self := s.Self()
	if self == nil {
		return 0, errors.New("session is not ready")
	}
	return s.MemberPermissions(channelID, self.ID)
}

// MemberPermissions resolves a user's permissions from the state cache,
// falling back to the API. Direct channels grant the usual text
// permissions.
func (s *Session) MemberPermissions(channelID, userID string) (int64, error) {
	if ch, err := s.dg.State.Channel(channelID); err == nil && isDirect(ch) {
		return dmPermissions, nil
	}
	if perms, err := s.dg.State.UserChannelPermissions(userID, channelID); err == nil {
		return perms, nil
	}
	ch, err := s.dg.Channel(channelID)
	if err != nil {
		return 0, withStatus(err)
	}
	if isDirect(ch) {
		return dmPermissions, nil
	}
	perms, err := s.dg.UserChannelPermissions(userID, channelID)
	return perms, withStatus(err)
}

func isDirect(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM
}

func (s *Session) User(ctx context.Context, userID string) (*discordgo.User, error) {
	u, err := s.dg.User(userID, discordgo.WithContext(ctx))
	return u, withStatus(err)
}

// Self is the bot user, or nil before the gateway is ready.
func (s *Session) Self() *discordgo.User {
	if s.dg.State == nil {
		return nil
	}
	return s.dg.State.User
}

func (s *Session) Latency() time.Duration { return s.dg.HeartbeatLatency() }
