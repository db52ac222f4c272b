package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v3"

	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/config"
)

// Telebot is a Telegram Bot API transport. Bots cannot see messages that
// privacy mode hides from them, so it only sees what the bot is allowed to.
type Telebot struct {
	cfg config.TelebotConfig
	bus *bus.MessageBus

	mu   sync.Mutex
	api  *tele.Bot
	ctx  context.Context
	stop sync.Once
}

// NewTelebot creates a new Telegram bot transport.
func NewTelebot(cfg config.TelebotConfig, b *bus.MessageBus) *Telebot {
	return &Telebot{cfg: cfg, bus: b}
}

func (t *Telebot) Name() string { return "telebot" }

// Start polls for updates until ctx is done.
func (t *Telebot) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telebot token not configured")
	}

	api, err := tele.NewBot(tele.Settings{
		Token:  t.cfg.Token,
		Poller: &tele.LongPoller{Timeout: t.cfg.PollTimeout},
		OnError: func(err error, c tele.Context) {
			slog.Warn("Telebot handler error", "err", err)
		},
	})
	if err != nil {
		return fmt.Errorf("create telebot: %w", err)
	}

	t.mu.Lock()
	t.api = api
	t.ctx = ctx
	t.mu.Unlock()

	for _, endpoint := range []string{
		tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnDocument,
		tele.OnVoice, tele.OnAudio, tele.OnSticker, tele.OnChannelPost,
	} {
		api.Handle(endpoint, t.onMessage)
	}

	go func() {
		<-ctx.Done()
		t.Stop()
	}()

	slog.Info("Telebot started", "bot", api.Me.Username)
	api.Start()
	return nil
}

// Stop ends polling.
func (t *Telebot) Stop() error {
	t.mu.Lock()
	api := t.api
	t.mu.Unlock()
	if api != nil {
		t.stop.Do(api.Stop)
	}
	return nil
}

// Send sends a message through the Bot API.
func (t *Telebot) Send(_ context.Context, msg *bus.OutboundMessage) error {
	t.mu.Lock()
	api := t.api
	t.mu.Unlock()
	if api == nil {
		return fmt.Errorf("telebot not started")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telebot: invalid chat id %q", msg.ChatID)
	}
	opts := &tele.SendOptions{}
	if replyTo, err := strconv.Atoi(msg.ReplyTo); err == nil {
		opts.ReplyTo = &tele.Message{ID: replyTo}
	}
	if _, err := api.Send(&tele.Chat{ID: chatID}, msg.Content, opts); err != nil {
		return fmt.Errorf("send telebot message: %w", err)
	}
	return nil
}

func (t *Telebot) onMessage(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}

	content := m.Text
	if content == "" {
		content = m.Caption
	}
	in := &bus.InboundMessage{
		Channel:   t.Name(),
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Kind:      chatKind(m.Chat.Type),
		MessageID: strconv.Itoa(m.ID),
		Content:   content,
		Timestamp: m.Time(),
		Media:     telebotMedia(m),
	}
	if u := m.Sender; u != nil {
		sender := &bus.Sender{ID: strconv.FormatInt(u.ID, 10), Username: u.Username, Bot: u.IsBot}
		in.SenderID = sender.ID
		in.Resolve = func(context.Context) (*bus.Sender, error) { return sender, nil }
	}

	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	return t.bus.PublishInbound(ctx, in)
}

func chatKind(ct tele.ChatType) bus.Kind {
	switch ct {
	case tele.ChatPrivate:
		return bus.KindDirect
	case tele.ChatGroup, tele.ChatSuperGroup:
		return bus.KindGroup
	case tele.ChatChannel, tele.ChatChannelPrivate:
		return bus.KindBroadcast
	default:
		return bus.KindUnknown
	}
}

func telebotMedia(m *tele.Message) []string {
	var media []string
	switch {
	case m.Photo != nil:
		media = append(media, mediaMarker("photo"))
	case m.Video != nil:
		media = append(media, mediaMarker("video"))
	case m.Document != nil:
		media = append(media, mediaMarker("document"))
	case m.Voice != nil:
		media = append(media, mediaMarker("voice"))
	case m.Audio != nil:
		media = append(media, mediaMarker("audio"))
	case m.Sticker != nil:
		media = append(media, mediaMarker("sticker"))
	}
	return media
}
