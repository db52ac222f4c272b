package bus

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"
)

// maxOutboundRunes bounds the content length tried during send recovery.
const maxOutboundRunes = 1500

// OutboundHandler is a callback for outbound messages on a specific channel.
type OutboundHandler func(ctx context.Context, msg *OutboundMessage) error

// MessageBus decouples chat transports from the dispatcher using Go channels.
type MessageBus struct {
	Inbound  chan *InboundMessage
	Outbound chan *OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]OutboundHandler
}

// NewMessageBus creates a new message bus with buffered channels.
func NewMessageBus() *MessageBus {
	return NewMessageBusSize(64)
}

// NewMessageBusSize creates a message bus whose queues hold size messages.
func NewMessageBusSize(size int) *MessageBus {
	if size < 0 {
		size = 0
	}
	return &MessageBus{
		Inbound:     make(chan *InboundMessage, size),
		Outbound:    make(chan *OutboundMessage, size),
		subscribers: make(map[string][]OutboundHandler),
	}
}

// PublishInbound hands a message from a transport to the dispatcher.
// It blocks while the queue is full and gives up when ctx is done.
func (b *MessageBus) PublishInbound(ctx context.Context, msg *InboundMessage) error {
	select {
	case b.Inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound queues a message for delivery by the transport subscribers.
// It blocks while the queue is full and gives up when ctx is done.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg *OutboundMessage) error {
	select {
	case b.Outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a handler for outbound messages on a specific channel.
func (b *MessageBus) Subscribe(channel string, handler OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
}

// DispatchOutbound reads from the outbound queue and dispatches to subscribers.
// Blocks until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.Outbound:
			b.mu.RLock()
			handlers := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if len(handlers) == 0 {
				slog.Warn("no subscriber for outbound message", "channel", msg.Channel, "chat", msg.ChatID)
				continue
			}
			for _, h := range handlers {
				if err := h(ctx, msg); err != nil {
					slog.Warn("dispatch outbound failed, attempting recovery", "channel", msg.Channel, "err", err)
					b.recoverSend(ctx, h, msg)
				}
			}
		}
	}
}

// recoverSend retries a failed send once without the reply reference and
// with the content truncated, which covers deleted targets and length limits.
func (b *MessageBus) recoverSend(ctx context.Context, h OutboundHandler, original *OutboundMessage) {
	content := original.Content
	if utf8.RuneCountInString(content) > maxOutboundRunes {
		content = string([]rune(content)[:maxOutboundRunes]) + "\n\n[message truncated]"
	}
	if original.ReplyTo == "" && content == original.Content {
		slog.Error("recovery: nothing to simplify, message dropped", "channel", original.Channel, "chat", original.ChatID)
		return
	}

	plain := &OutboundMessage{
		Channel: original.Channel,
		ChatID:  original.ChatID,
		Content: content,
	}
	if err := h(ctx, plain); err != nil {
		slog.Error("recovery: plain send failed, message dropped", "channel", original.Channel, "err", err)
		return
	}
	slog.Info("recovery: sent without reply reference", "channel", original.Channel)
}
