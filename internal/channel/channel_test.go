package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	tele "gopkg.in/telebot.v3"

	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/config"
	"github.com/joebot/heyu/internal/session"
)

func TestPeerKind(t *testing.T) {
	tests := []struct {
		peer tg.PeerClass
		kind bus.Kind
		id   string
	}{
		{&tg.PeerUser{UserID: 5501}, bus.KindDirect, "5501"},
		{&tg.PeerChat{ChatID: 639022533}, bus.KindGroup, "639022533"},
		{&tg.PeerChannel{ChannelID: 1001}, bus.KindBroadcast, "1001"},
	}
	for _, tt := range tests {
		kind, id := peerKind(tt.peer)
		if kind != tt.kind || id != tt.id {
			t.Errorf("peerKind(%T) = %v, %q; want %v, %q", tt.peer, kind, id, tt.kind, tt.id)
		}
	}
}

func TestSenderUserID(t *testing.T) {
	group := &tg.Message{ID: 1, PeerID: &tg.PeerChat{ChatID: 639022533}}
	group.SetFromID(&tg.PeerUser{UserID: 5501})
	if got := senderUserID(group); got != 5501 {
		t.Errorf("group sender = %d, want 5501", got)
	}

	private := &tg.Message{ID: 2, PeerID: &tg.PeerUser{UserID: 77}}
	if got := senderUserID(private); got != 77 {
		t.Errorf("private sender = %d, want the peer 77", got)
	}

	anonymous := &tg.Message{ID: 3, PeerID: &tg.PeerChat{ChatID: 1}}
	anonymous.SetFromID(&tg.PeerChannel{ChannelID: 9})
	if got := senderUserID(anonymous); got != 0 {
		t.Errorf("anonymous sender = %d, want 0", got)
	}
}

func TestInputPeerOf(t *testing.T) {
	e := tg.Entities{
		Users: map[int64]*tg.User{5501: {ID: 5501, AccessHash: 42}},
	}
	if p, ok := inputPeerOf(&tg.PeerUser{UserID: 5501}, e).(*tg.InputPeerUser); !ok || p.AccessHash != 42 {
		t.Errorf("user peer = %v", p)
	}
	if _, ok := inputPeerOf(&tg.PeerChat{ChatID: 1}, e).(*tg.InputPeerChat); !ok {
		t.Error("chat peer should not need entities")
	}
	if p := inputPeerOf(&tg.PeerUser{UserID: 1}, e); p != nil {
		t.Errorf("unknown user should have no input peer, got %v", p)
	}
}

func TestMediaName(t *testing.T) {
	if got := mediaMarker(mediaName(&tg.MessageMediaPhoto{})); got != "[photo]" {
		t.Errorf("media marker = %q", got)
	}
}

func TestVaultStorage(t *testing.T) {
	ctx := context.Background()
	s := vaultStorage{vault: &session.Vault{}}

	if _, err := s.LoadSession(ctx); !errors.Is(err, tdsession.ErrNotFound) {
		t.Fatalf("empty vault = %v, want ErrNotFound", err)
	}
	if err := s.StoreSession(ctx, []byte("auth-key")); err != nil {
		t.Fatal(err)
	}
	data, err := s.LoadSession(ctx)
	if err != nil || string(data) != "auth-key" {
		t.Errorf("LoadSession = %q, %v", data, err)
	}
}

func TestTranslateAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"password needed", auth.ErrPasswordAuthNeeded, session.ErrPasswordNeeded},
		{"wrong password", auth.ErrPasswordInvalid, session.ErrInvalidPassword},
		{"wrong code", tgerr.New(400, "PHONE_CODE_INVALID"), session.ErrInvalidCode},
		{"bad phone", tgerr.New(400, "PHONE_NUMBER_INVALID"), session.ErrInvalidIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translateAuthError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("translateAuthError = %v, want %v", got, tt.want)
			}
		})
	}

	flood := tgerr.New(420, "FLOOD_WAIT_30")
	if got := translateAuthError(flood); session.IsCredentialError(got) {
		t.Errorf("flood wait must stay a transport error, got %v", got)
	}
	if translateAuthError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestTelegramSendUnknownChat(t *testing.T) {
	tr := NewTelegram(config.TelegramConfig{APIID: 1, APIHash: "x"}, bus.NewMessageBus(), session.NewManager(session.Config{}))
	err := tr.Send(context.Background(), &bus.OutboundMessage{Channel: "telegram", ChatID: "639022533", Content: "1"})
	if err == nil {
		t.Error("sending to a chat never seen should fail")
	}
}

func TestChatKind(t *testing.T) {
	tests := map[tele.ChatType]bus.Kind{
		tele.ChatPrivate:        bus.KindDirect,
		tele.ChatGroup:          bus.KindGroup,
		tele.ChatSuperGroup:     bus.KindGroup,
		tele.ChatChannel:        bus.KindBroadcast,
		tele.ChatChannelPrivate: bus.KindBroadcast,
	}
	for ct, want := range tests {
		if got := chatKind(ct); got != want {
			t.Errorf("chatKind(%s) = %v, want %v", ct, got, want)
		}
	}
}

func TestTelebotMedia(t *testing.T) {
	if got := telebotMedia(&tele.Message{Photo: &tele.Photo{}}); len(got) != 1 || got[0] != "[photo]" {
		t.Errorf("media = %v", got)
	}
	if got := telebotMedia(&tele.Message{Text: "hi"}); len(got) != 0 {
		t.Errorf("text message has media %v", got)
	}
}

func TestChannelKind(t *testing.T) {
	tests := map[discordgo.ChannelType]bus.Kind{
		discordgo.ChannelTypeDM:        bus.KindDirect,
		discordgo.ChannelTypeGuildText: bus.KindGroup,
		discordgo.ChannelTypeGuildNews: bus.KindBroadcast,
	}
	for ct, want := range tests {
		if got := channelKind(ct); got != want {
			t.Errorf("channelKind(%d) = %v, want %v", ct, got, want)
		}
	}
}
