package action

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/joebot/heyu/internal/rule"
)

// DefaultReplyText and DefaultReplyDelay answer a roll call the way the
// operator used to by hand.
const (
	DefaultReplyText  = "1"
	DefaultReplyDelay = 2 * time.Second
)

// FactoryConfig holds the shared resources actions are built from.
type FactoryConfig struct {
	Publish        PublishFunc
	Recorder       Recorder
	KafkaBrokers   []string
	KafkaTopic     string
	WebhookTimeout time.Duration
}

// Factory builds actions from rule specs, sharing one Kafka writer per topic
// and one HTTP client.
type Factory struct {
	cfg  FactoryConfig
	http *fasthttp.Client

	mu      sync.Mutex
	writers map[string]messageWriter
}

// NewFactory creates an action factory.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "heyu",
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        30 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
		writers: make(map[string]messageWriter),
	}
}

// Build turns one action spec into an action.
func (f *Factory) Build(spec rule.ActionSpec) (Action, error) {
	switch spec.Kind {
	case "log":
		return LogAction{}, nil
	case "reply":
		text := spec.Text
		if text == "" {
			text = DefaultReplyText
		}
		delay := spec.Delay
		if delay == 0 {
			delay = DefaultReplyDelay
		}
		return NewReplyAction(f.cfg.Publish, text, delay), nil
	case "journal":
		if f.cfg.Recorder == nil {
			return nil, errors.New("journal action needs journal.enabled")
		}
		return NewJournalAction(f.cfg.Recorder), nil
	case "kafka":
		topic := spec.Topic
		if topic == "" {
			topic = f.cfg.KafkaTopic
		}
		if len(f.cfg.KafkaBrokers) == 0 || topic == "" {
			return nil, errors.New("kafka action needs kafka.brokers and a topic")
		}
		return &KafkaAction{w: f.writer(topic), topic: topic}, nil
	case "webhook":
		if spec.URL == "" {
			return nil, errors.New("webhook action needs a url")
		}
		return NewWebhookAction(f.http, spec.URL, f.cfg.WebhookTimeout), nil
	}
	return nil, fmt.Errorf("unknown action kind %q", spec.Kind)
}

// BuildAll builds the actions of every rule in t, keyed by rule name.
// A rule without actions gets a log action.
func (f *Factory) BuildAll(t *rule.Table) (map[string][]Action, error) {
	out := make(map[string][]Action, len(t.Rules))
	for _, r := range t.Rules {
		specs := r.Actions
		if len(specs) == 0 {
			specs = []rule.ActionSpec{{Kind: "log"}}
		}
		for i, spec := range specs {
			a, err := f.Build(spec)
			if err != nil {
				return nil, fmt.Errorf("rule %q actions[%d]: %w", r.Name, i, err)
			}
			out[r.Name] = append(out[r.Name], a)
		}
	}
	return out, nil
}

func (f *Factory) writer(topic string) messageWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.writers[topic]; ok {
		return w
	}
	w := newKafkaWriter(f.cfg.KafkaBrokers, topic)
	f.writers[topic] = w
	return w
}

// Close flushes and closes the Kafka writers.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for topic, w := range f.writers {
		if err := w.Close(); err != nil {
			slog.Warn("close kafka writer", "topic", topic, "err", err)
			errs = append(errs, err)
		}
	}
	f.writers = make(map[string]messageWriter)
	return errors.Join(errs...)
}
