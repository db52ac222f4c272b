package bus

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind classifies the conversation a message arrived in.
type Kind int

const (
	KindUnknown Kind = iota
	KindDirect
	KindGroup
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name (as written in rule files) into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "private", "user":
		return KindDirect, nil
	case "group", "chat":
		return KindGroup, nil
	case "broadcast", "channel":
		return KindBroadcast, nil
	}
	return KindUnknown, fmt.Errorf("unknown conversation kind %q", s)
}

// Sender is the resolved author of a message. Username may be empty.
type Sender struct {
	ID       string
	Username string
	Bot      bool
}

// SenderResolver looks up the author of a message. A nil sender with a nil
// error means the author is unknown.
type SenderResolver func(ctx context.Context) (*Sender, error)

// InboundMessage is a message received from a chat transport.
// It is read-only once published.
type InboundMessage struct {
	Channel   string
	ChatID    string
	Kind      Kind
	MessageID string
	SenderID  string
	Content   string
	Timestamp time.Time
	Media     []string

	// Resolve is optional; without it the sender is built from SenderID.
	Resolve SenderResolver
}

// ResolveSender returns the message author, or nil if it cannot be determined.
func (m *InboundMessage) ResolveSender(ctx context.Context) (*Sender, error) {
	if m.Resolve != nil {
		return m.Resolve(ctx)
	}
	if m.SenderID == "" {
		return nil, nil
	}
	return &Sender{ID: m.SenderID}, nil
}

// OutboundMessage is a message to send to a chat transport.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	ReplyTo string
}
