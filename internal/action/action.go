// Package action implements what a matching rule does.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joebot/heyu/internal/bus"
)

// Match is the input of an action: the rule that fired and the message it fired on.
type Match struct {
	Rule    string
	Message *bus.InboundMessage
	Sender  *bus.Sender
	Groups  []string // pattern captures, if the rule has a pattern
	At      time.Time
}

// Username returns the sender username, or "" when unknown.
func (m Match) Username() string {
	if m.Sender == nil {
		return ""
	}
	return m.Sender.Username
}

// Action is run once per match.
type Action interface {
	Kind() string
	Run(ctx context.Context, m Match) error
}

// Event is the serialized form of a match sent to external sinks.
type Event struct {
	ID        string    `json:"id"`
	Rule      string    `json:"rule"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chatId"`
	Kind      string    `json:"kind"`
	MessageID string    `json:"messageId"`
	SenderID  string    `json:"senderId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	Groups    []string  `json:"groups,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent builds the external form of m with a fresh ID.
func NewEvent(m Match) Event {
	e := Event{
		ID:        uuid.NewString(),
		Rule:      m.Rule,
		Channel:   m.Message.Channel,
		ChatID:    m.Message.ChatID,
		Kind:      m.Message.Kind.String(),
		MessageID: m.Message.MessageID,
		SenderID:  m.Message.SenderID,
		Username:  m.Username(),
		Text:      m.Message.Content,
		Groups:    m.Groups,
		At:        m.At,
	}
	if m.Sender != nil && m.Sender.ID != "" {
		e.SenderID = m.Sender.ID
	}
	return e
}

// LogAction writes a log line for the match.
type LogAction struct{}

func (LogAction) Kind() string { return "log" }

func (LogAction) Run(_ context.Context, m Match) error {
	attrs := []any{
		"rule", m.Rule,
		"channel", m.Message.Channel,
		"chat", m.Message.ChatID,
		"sender", m.Username(),
		"message", m.Message.MessageID,
	}
	if len(m.Groups) > 0 {
		attrs = append(attrs, "groups", strings.Join(m.Groups, ","))
	}
	attrs = append(attrs, "text", preview(m.Message.Content, 200))
	slog.Info("Rule matched", attrs...)
	return nil
}

// PublishFunc queues an outbound message, usually MessageBus.PublishOutbound.
type PublishFunc func(ctx context.Context, msg *bus.OutboundMessage) error

// ReplyAction answers the matched message in the same conversation.
type ReplyAction struct {
	publish PublishFunc
	text    string
	delay   time.Duration
}

// NewReplyAction creates a reply action.
func NewReplyAction(publish PublishFunc, text string, delay time.Duration) *ReplyAction {
	return &ReplyAction{publish: publish, text: text, delay: delay}
}

func (a *ReplyAction) Kind() string { return "reply" }

func (a *ReplyAction) Run(ctx context.Context, m Match) error {
	if a.publish == nil {
		return fmt.Errorf("reply: message sending not configured")
	}
	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	err := a.publish(ctx, &bus.OutboundMessage{
		Channel: m.Message.Channel,
		ChatID:  m.Message.ChatID,
		Content: a.text,
		ReplyTo: m.Message.MessageID,
	})
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
