package channel

import (
	"context"
	"strings"

	"github.com/joebot/heyu/internal/bus"
)

// Channel is the interface for chat platform integrations.
type Channel interface {
	Name() string
	// Start connects and publishes inbound messages until ctx is done.
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// Attach routes outbound messages addressed to ch through its Send.
func Attach(b *bus.MessageBus, ch Channel) {
	b.Subscribe(ch.Name(), ch.Send)
}

// mediaMarker names a non-text payload the way it is recorded on the bus.
func mediaMarker(kind string) string {
	return "[" + strings.ToLower(kind) + "]"
}
