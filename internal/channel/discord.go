package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/config"
)

// Discord is a Discord gateway transport.
type Discord struct {
	config config.DiscordConfig
	bus    *bus.MessageBus

	mu     sync.Mutex
	s      *discordgo.Session
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDiscord creates a new Discord channel.
func NewDiscord(cfg config.DiscordConfig, b *bus.MessageBus) *Discord {
	return &Discord{config: cfg, bus: b}
}

func (d *Discord) Name() string { return "discord" }

// Start opens the gateway connection and blocks until ctx is done.
// discordgo reconnects on its own after gateway drops.
func (d *Discord) Start(ctx context.Context) error {
	if d.config.Token == "" {
		return fmt.Errorf("discord bot token not configured")
	}

	s, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.Intent(d.config.Intents)
	s.AddHandler(d.onMessageCreate)
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord gateway READY", "user", r.User.Username)
	})

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.s, d.ctx, d.cancel = s, ctx, cancel
	d.mu.Unlock()

	slog.Info("Connecting to Discord gateway...")
	if err := s.Open(); err != nil {
		cancel()
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	return s.Close()
}

// Stop disconnects from Discord.
func (d *Discord) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

// Send sends a message through the Discord REST API.
func (d *Discord) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	d.mu.Lock()
	s := d.s
	d.mu.Unlock()
	if s == nil {
		return fmt.Errorf("discord not started")
	}

	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
		send.AllowedMentions = &discordgo.MessageAllowedMentions{RepliedUser: false}
	}
	if _, err := s.ChannelMessageSendComplex(msg.ChatID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.ChannelID == "" {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	in := &bus.InboundMessage{
		Channel:   d.Name(),
		ChatID:    m.ChannelID,
		Kind:      d.kindOf(s, m),
		MessageID: m.ID,
		SenderID:  m.Author.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	for range m.Attachments {
		in.Media = append(in.Media, mediaMarker("attachment"))
	}
	sender := &bus.Sender{ID: m.Author.ID, Username: m.Author.Username, Bot: m.Author.Bot}
	in.Resolve = func(context.Context) (*bus.Sender, error) { return sender, nil }

	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if err := d.bus.PublishInbound(ctx, in); err != nil {
		slog.Debug("Discord message dropped", "err", err)
	}
}

// kindOf prefers the cached channel type and falls back to the guild ID.
func (d *Discord) kindOf(s *discordgo.Session, m *discordgo.MessageCreate) bus.Kind {
	if s.State != nil {
		if c, err := s.State.Channel(m.ChannelID); err == nil {
			return channelKind(c.Type)
		}
	}
	if m.GuildID == "" {
		return bus.KindDirect
	}
	return bus.KindGroup
}

func channelKind(t discordgo.ChannelType) bus.Kind {
	switch t {
	case discordgo.ChannelTypeDM:
		return bus.KindDirect
	case discordgo.ChannelTypeGroupDM, discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread:
		return bus.KindGroup
	case discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildNewsThread:
		return bus.KindBroadcast
	default:
		return bus.KindUnknown
	}
}
