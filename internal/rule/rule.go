// Package rule holds the match rules evaluated against inbound messages.
package rule

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/joebot/heyu/internal/bus"
)

// ActionSpec describes one action to run when a rule matches.
// Which fields apply depends on Kind.
type ActionSpec struct {
	Kind  string        `yaml:"kind"`
	Text  string        `yaml:"text,omitempty"`
	Delay time.Duration `yaml:"delay,omitempty"`
	Topic string        `yaml:"topic,omitempty"`
	URL   string        `yaml:"url,omitempty"`
}

// Rule is a predicate over an inbound message plus the actions to run when it holds.
// Empty Kinds, Chats or Senders match anything. Bots restricts the sender to
// bot accounts (true) or to people (false). Pattern is a regular expression
// the text must match; its capture groups are handed to the actions.
// Dedupe suppresses a repeat of the same match within the window.
type Rule struct {
	Name     string        `yaml:"name"`
	Kinds    []string      `yaml:"kinds,omitempty"`
	Chats    []string      `yaml:"chats,omitempty"`
	Senders  []string      `yaml:"senders,omitempty"`
	Bots     *bool         `yaml:"bots,omitempty"`
	Contains []string      `yaml:"contains,omitempty"`
	Excludes []string      `yaml:"excludes,omitempty"`
	Pattern  string        `yaml:"pattern,omitempty"`
	Dedupe   time.Duration `yaml:"dedupe,omitempty"`
	Stop     bool          `yaml:"stop,omitempty"`
	Actions  []ActionSpec  `yaml:"actions,omitempty"`

	once     sync.Once
	compiled *compiled
	err      error
}

type compiled struct {
	kinds   []bus.Kind
	pattern *regexp.Regexp
}

// Subject is what a rule is evaluated against.
type Subject struct {
	Kind   bus.Kind
	ChatID string
	Sender *bus.Sender
	Text   string
}

// SubjectOf builds a Subject from a message and its resolved sender.
func SubjectOf(msg *bus.InboundMessage, sender *bus.Sender) Subject {
	return Subject{Kind: msg.Kind, ChatID: msg.ChatID, Sender: sender, Text: msg.Content}
}

// prepare parses kinds and the pattern once. Edits to the rule after the
// first call are not seen.
func (r *Rule) prepare() (*compiled, error) {
	r.once.Do(func() {
		c := &compiled{}
		for _, name := range r.Kinds {
			k, err := bus.ParseKind(name)
			if err != nil {
				r.err = fmt.Errorf("rule %q: %w", r.Name, err)
				return
			}
			c.kinds = append(c.kinds, k)
		}
		if r.Pattern != "" {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				r.err = fmt.Errorf("rule %q: pattern: %w", r.Name, err)
				return
			}
			c.pattern = re
		}
		r.compiled = c
	})
	return r.compiled, r.err
}

// NeedsSender reports whether the rule looks at who sent the message.
func (r *Rule) NeedsSender() bool {
	return len(r.Senders) > 0 || r.Bots != nil
}

// Match reports whether the rule's predicate holds for s.
// A rule that does not compile never matches.
func (r *Rule) Match(s Subject) bool {
	return r.MatchMessage(s) && r.MatchSender(s.Sender)
}

// MatchMessage checks everything except the sender.
func (r *Rule) MatchMessage(s Subject) bool {
	c, err := r.prepare()
	if err != nil {
		return false
	}
	if len(c.kinds) > 0 && !containsKind(c.kinds, s.Kind) {
		return false
	}
	if len(r.Chats) > 0 && !containsString(r.Chats, s.ChatID) {
		return false
	}
	if (len(r.Contains) > 0 || c.pattern != nil) && s.Text == "" {
		return false
	}
	for _, sub := range r.Contains {
		if !strings.Contains(s.Text, sub) {
			return false
		}
	}
	for _, sub := range r.Excludes {
		if strings.Contains(s.Text, sub) {
			return false
		}
	}
	if c.pattern != nil && !c.pattern.MatchString(s.Text) {
		return false
	}
	return true
}

// MatchSender checks the sender filters. An unknown sender fails any of them.
func (r *Rule) MatchSender(sender *bus.Sender) bool {
	if !r.NeedsSender() {
		return true
	}
	if sender == nil {
		return false
	}
	if r.Bots != nil && sender.Bot != *r.Bots {
		return false
	}
	if len(r.Senders) > 0 {
		if sender.Username == "" || !containsUsername(r.Senders, sender.Username) {
			return false
		}
	}
	return true
}

// Groups returns the pattern's capture groups for text, or nil.
func (r *Rule) Groups(text string) []string {
	c, err := r.prepare()
	if err != nil || c.pattern == nil {
		return nil
	}
	m := c.pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	return m[1:]
}

// DedupeKey identifies a match for repeat suppression: the conversation plus
// the first capture group, the whole pattern match, or the text.
func (r *Rule) DedupeKey(s Subject) string {
	key := s.Text
	if c, err := r.prepare(); err == nil && c.pattern != nil {
		if m := c.pattern.FindStringSubmatch(s.Text); len(m) > 1 {
			key = m[1]
		} else if len(m) == 1 {
			key = m[0]
		}
	}
	return r.Name + "\x00" + s.ChatID + "\x00" + key
}

func containsKind(kinds []bus.Kind, k bus.Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Usernames compare case-insensitively and with or without a leading '@'.
func containsUsername(list []string, username string) bool {
	username = strings.TrimPrefix(username, "@")
	for _, v := range list {
		if strings.EqualFold(strings.TrimPrefix(v, "@"), username) {
			return true
		}
	}
	return false
}
