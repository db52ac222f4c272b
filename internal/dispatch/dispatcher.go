// Package dispatch evaluates the rule table against inbound messages.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joebot/heyu/internal/action"
	"github.com/joebot/heyu/internal/bus"
	"github.com/joebot/heyu/internal/rule"
)

// DefaultWorkers is the number of events evaluated concurrently.
const DefaultWorkers = 4

// Config holds what a Dispatcher evaluates and runs.
type Config struct {
	Rules   *rule.Table
	Actions map[string][]action.Action
	Workers int
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Received       uint64
	Rejected       uint64
	Matched        uint64
	Suppressed     uint64
	ActionFailures uint64
}

// Dispatcher holds no per-event state; one instance serves every worker.
type Dispatcher struct {
	rules   *rule.Table
	actions map[string][]action.Action
	workers int
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time // dedupe key -> end of its window

	received       atomic.Uint64
	rejected       atomic.Uint64
	matched        atomic.Uint64
	suppressed     atomic.Uint64
	actionFailures atomic.Uint64
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Rules == nil {
		cfg.Rules = &rule.Table{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Dispatcher{
		rules:   cfg.Rules,
		actions: cfg.Actions,
		workers: cfg.Workers,
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:       d.received.Load(),
		Rejected:       d.rejected.Load(),
		Matched:        d.matched.Load(),
		Suppressed:     d.suppressed.Load(),
		ActionFailures: d.actionFailures.Load(),
	}
}

// Evaluate returns the rules matching msg, in table order, honouring stop,
// and the sender they were judged against. Broadcast conversations never
// match. The sender is looked up at most once, and only when a rule that
// fits the message needs it or something matched. It has no side effects.
func (d *Dispatcher) Evaluate(ctx context.Context, msg *bus.InboundMessage) ([]*rule.Rule, *bus.Sender) {
	if msg == nil || msg.Kind == bus.KindBroadcast {
		return nil, nil
	}

	var (
		sender   *bus.Sender
		resolved bool
	)
	lookup := func() *bus.Sender {
		if !resolved {
			sender, resolved = d.resolveSender(ctx, msg), true
		}
		return sender
	}

	subject := rule.SubjectOf(msg, nil)
	var matched []*rule.Rule
	for _, r := range d.rules.Rules {
		if !r.MatchMessage(subject) {
			continue
		}
		if r.NeedsSender() && !r.MatchSender(lookup()) {
			continue
		}
		matched = append(matched, r)
		if r.Stop {
			break
		}
	}
	if len(matched) > 0 {
		lookup()
	}
	return matched, sender
}

// Handle evaluates msg and runs the actions of every matching rule.
// Failures are logged and counted; they never propagate to the caller.
func (d *Dispatcher) Handle(ctx context.Context, msg *bus.InboundMessage) {
	d.received.Add(1)
	defer func() {
		if p := recover(); p != nil {
			d.actionFailures.Add(1)
			slog.Error("dispatcher panic", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
		}
	}()

	if msg == nil {
		return
	}
	if msg.Kind == bus.KindBroadcast {
		d.rejected.Add(1)
		slog.Debug("Ignoring broadcast message", "channel", msg.Channel, "chat", msg.ChatID)
		return
	}

	rules, sender := d.Evaluate(ctx, msg)
	subject := rule.SubjectOf(msg, sender)
	for _, r := range rules {
		if r.Dedupe > 0 && d.repeated(r.DedupeKey(subject), r.Dedupe) {
			d.suppressed.Add(1)
			slog.Info("Skipping repeated match", "rule", r.Name, "chat", msg.ChatID, "window", r.Dedupe)
			continue
		}
		d.matched.Add(1)
		m := action.Match{
			Rule:    r.Name,
			Message: msg,
			Sender:  sender,
			Groups:  r.Groups(msg.Content),
			At:      d.now(),
		}
		for _, a := range d.actions[r.Name] {
			if err := d.run(ctx, a, m); err != nil {
				d.actionFailures.Add(1)
				slog.Error("action failed", "rule", r.Name, "action", a.Kind(), "chat", msg.ChatID, "err", err)
			}
		}
	}
}

// run isolates one action so a panic in it does not skip the rest.
func (d *Dispatcher) run(ctx context.Context, a action.Action, m action.Match) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return a.Run(ctx, m)
}

// repeated reports whether key fired less than its window ago. A first
// sighting opens the window; a repeat does not extend it.
func (d *Dispatcher) repeated(key string, window time.Duration) bool {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if until, ok := d.seen[key]; ok && now.Before(until) {
		return true
	}
	if len(d.seen) >= 256 {
		for k, until := range d.seen {
			if !now.Before(until) {
				delete(d.seen, k)
			}
		}
	}
	d.seen[key] = now.Add(window)
	return false
}

func (d *Dispatcher) resolveSender(ctx context.Context, msg *bus.InboundMessage) *bus.Sender {
	sender, err := msg.ResolveSender(ctx)
	if err != nil {
		slog.Warn("sender lookup failed, treating sender as unknown",
			"channel", msg.Channel, "chat", msg.ChatID, "message", msg.MessageID, "err", err)
		return nil
	}
	return sender
}

// Run consumes inbound until ctx is cancelled or inbound is closed,
// handling events on a fixed pool of workers.
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan *bus.InboundMessage) {
	slog.Info("Dispatcher started", "rules", len(d.rules.Rules), "workers", d.workers)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-inbound:
					if !ok {
						return
					}
					d.Handle(ctx, msg)
				}
			}
		}()
	}
	wg.Wait()
	slog.Info("Dispatcher stopped")
}
