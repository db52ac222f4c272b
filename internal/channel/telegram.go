package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/session"
)

// Telegram is a user-account transport over MTProto. It logs in through the
// session manager and publishes every new message it sees.
type Telegram struct {
	cfg      config.TelegramConfig
	bus      *bus.MessageBus
	sessions *session.Manager

	client *telegram.Client
	api    *tg.Client
	sender *message.Sender

	peers sync.Map // chat ID -> tg.InputPeerClass
	users sync.Map // user ID -> *tg.User

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTelegram creates the transport. Session bytes are read from and written
// to the manager's vault.
func NewTelegram(cfg config.TelegramConfig, b *bus.MessageBus, sessions *session.Manager) *Telegram {
	t := &Telegram{cfg: cfg, bus: b, sessions: sessions}

	updates := tg.NewUpdateDispatcher()
	updates.OnNewMessage(t.onNewMessage)
	updates.OnNewChannelMessage(t.onNewChannelMessage)

	t.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: vaultStorage{vault: sessions.Vault()},
		UpdateHandler:  updates,
	})
	t.api = t.client.API()
	t.sender = message.NewSender(t.api)
	return t
}

func (t *Telegram) Name() string { return "telegram" }

// Login connects, authenticates and disconnects.
func (t *Telegram) Login(ctx context.Context) error {
	return t.client.Run(ctx, func(ctx context.Context) error {
		return t.sessions.Connect(ctx, telegramAuth{client: t.client.Auth()})
	})
}

// Start authenticates and then receives updates until ctx is done.
func (t *Telegram) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	slog.Info("Connecting to Telegram...")
	err := t.client.Run(ctx, func(ctx context.Context) error {
		if err := t.sessions.Connect(ctx, telegramAuth{client: t.client.Auth()}); err != nil {
			return err
		}
		self, err := t.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		slog.Info("Telegram connected", "user", self.Username, "id", self.ID)

		<-ctx.Done()
		return ctx.Err()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop disconnects from Telegram.
func (t *Telegram) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

// Send posts a text message to a chat seen earlier in this process.
func (t *Telegram) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	p, ok := t.peers.Load(msg.ChatID)
	if !ok {
		return fmt.Errorf("telegram: no known peer for chat %s", msg.ChatID)
	}
	req := t.sender.To(p.(tg.InputPeerClass))

	var err error
	if id, convErr := strconv.Atoi(msg.ReplyTo); msg.ReplyTo != "" && convErr == nil {
		_, err = req.Reply(id).Text(ctx, msg.Content)
	} else {
		_, err = req.Text(ctx, msg.Content)
	}
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	return t.handle(ctx, e, u.Message)
}

func (t *Telegram) onNewChannelMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
	return t.handle(ctx, e, u.Message)
}

func (t *Telegram) handle(ctx context.Context, e tg.Entities, mc tg.MessageClass) error {
	msg, ok := mc.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}
	t.remember(e)

	kind, chatID := peerKind(msg.PeerID)
	peer := inputPeerOf(msg.PeerID, e)
	if peer != nil {
		t.peers.Store(chatID, peer)
	}

	userID := senderUserID(msg)
	in := &bus.InboundMessage{
		Channel:   t.Name(),
		ChatID:    chatID,
		Kind:      kind,
		MessageID: strconv.Itoa(msg.ID),
		Content:   msg.Message,
		Timestamp: time.Unix(int64(msg.Date), 0),
		Resolve:   t.senderResolver(peer, msg.ID, userID),
	}
	if userID != 0 {
		in.SenderID = strconv.FormatInt(userID, 10)
	}
	if media, ok := msg.GetMedia(); ok {
		in.Media = []string{mediaMarker(mediaName(media))}
	}
	return t.bus.PublishInbound(ctx, in)
}

// remember caches the users delivered alongside an update.
func (t *Telegram) remember(e tg.Entities) {
	for id, u := range e.Users {
		t.users.Store(id, u)
	}
}

// senderResolver looks the author up in the entity cache and falls back to
// fetching it through the message it wrote.
func (t *Telegram) senderResolver(peer tg.InputPeerClass, msgID int, userID int64) bus.SenderResolver {
	return func(ctx context.Context) (*bus.Sender, error) {
		if userID == 0 {
			return nil, nil
		}
		if u, ok := t.users.Load(userID); ok {
			return senderOf(u.(*tg.User)), nil
		}
		if peer == nil {
			return nil, nil
		}

		users, err := t.api.UsersGetUsers(ctx, []tg.InputUserClass{
			&tg.InputUserFromMessage{Peer: peer, MsgID: msgID, UserID: userID},
		})
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", userID, err)
		}
		for _, uc := range users {
			if u, ok := uc.(*tg.User); ok && u.ID == userID {
				t.users.Store(userID, u)
				return senderOf(u), nil
			}
		}
		return nil, nil
	}
}

func senderOf(u *tg.User) *bus.Sender {
	return &bus.Sender{ID: strconv.FormatInt(u.ID, 10), Username: u.Username, Bot: u.Bot}
}

// senderUserID returns the author of msg, or 0 when it is not a user
// (anonymous admins, channel posts).
func senderUserID(msg *tg.Message) int64 {
	if from, ok := msg.GetFromID(); ok {
		if pu, ok := from.(*tg.PeerUser); ok {
			return pu.UserID
		}
		return 0
	}
	// Private chats omit the author; it is the peer itself.
	if pu, ok := msg.PeerID.(*tg.PeerUser); ok {
		return pu.UserID
	}
	return 0
}

// peerKind maps a peer to its conversation kind and chat ID. Supergroups are
// channels on the wire and are therefore reported as broadcast.
func peerKind(p tg.PeerClass) (bus.Kind, string) {
	switch p := p.(type) {
	case *tg.PeerUser:
		return bus.KindDirect, strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChat:
		return bus.KindGroup, strconv.FormatInt(p.ChatID, 10)
	case *tg.PeerChannel:
		return bus.KindBroadcast, strconv.FormatInt(p.ChannelID, 10)
	default:
		return bus.KindUnknown, ""
	}
}

func inputPeerOf(p tg.PeerClass, e tg.Entities) tg.InputPeerClass {
	switch p := p.(type) {
	case *tg.PeerUser:
		if u, ok := e.Users[p.UserID]; ok {
			return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		if c, ok := e.Channels[p.ChannelID]; ok {
			return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
		}
	}
	return nil
}

// mediaName turns "messageMediaPhoto" into "photo".
func mediaName(m tg.MessageMediaClass) string {
	return strings.TrimPrefix(m.TypeName(), "messageMedia")
}

// vaultStorage lets the client keep its session bytes in the vault.
type vaultStorage struct {
	vault *session.Vault
}

func (s vaultStorage) LoadSession(context.Context) ([]byte, error) {
	data, err := s.vault.Load()
	if errors.Is(err, session.ErrNoToken) {
		return nil, tdsession.ErrNotFound
	}
	return data, err
}

func (s vaultStorage) StoreSession(_ context.Context, data []byte) error {
	s.vault.Store(data)
	return nil
}

// telegramAuth adapts the MTProto auth flow to session.Authorizer.
type telegramAuth struct {
	client *auth.Client
}

func (a telegramAuth) Authorized(ctx context.Context) (bool, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

func (a telegramAuth) RequestCode(ctx context.Context, phone string) (session.Challenge, error) {
	sent, err := a.client.SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return session.Challenge{}, translateAuthError(err)
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return session.Challenge{}, fmt.Errorf("unexpected sent code %T", sent)
	}
	return session.Challenge{Identifier: phone, Hash: code.PhoneCodeHash}, nil
}

func (a telegramAuth) SignIn(ctx context.Context, ch session.Challenge, code string) error {
	_, err := a.client.SignIn(ctx, ch.Identifier, code, ch.Hash)
	return translateAuthError(err)
}

func (a telegramAuth) CheckPassword(ctx context.Context, password string) error {
	_, err := a.client.Password(ctx, password)
	return translateAuthError(err)
}

// translateAuthError maps RPC rejections onto the session credential errors
// so the manager re-prompts instead of failing.
func translateAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return session.ErrPasswordNeeded
	case errors.Is(err, auth.ErrPasswordInvalid):
		return fmt.Errorf("%w: %v", session.ErrInvalidPassword, err)
	case tgerr.Is(err, "PHONE_NUMBER_INVALID", "PHONE_NUMBER_UNOCCUPIED"):
		return fmt.Errorf("%w: %v", session.ErrInvalidIdentifier, err)
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EMPTY", "PHONE_CODE_EXPIRED"):
		return fmt.Errorf("%w: %v", session.ErrInvalidCode, err)
	default:
		return err
	}
}
