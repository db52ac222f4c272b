package rule

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionKinds lists the action kinds a rule may reference.
var ActionKinds = []string{"log", "reply", "kafka", "webhook", "journal"}

// Table is an ordered sequence of rules.
type Table struct {
	Rules []*Rule `yaml:"rules"`
}

// DefaultTable returns the built-in roll-call rule: a specific member asking
// the group for an on-duty roll call, ignoring the follow-up results post.
func DefaultTable() *Table {
	t := &Table{Rules: []*Rule{{
		Name:     "roll-call",
		Kinds:    []string{"group"},
		Chats:    []string{"639022533"},
		Senders:  []string{"junml1107hr2"},
		Contains: []string{"点名", "在岗", "同事回复"},
		Excludes: []string{"结果"},
		Actions:  []ActionSpec{{Kind: "log"}},
	}}}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

// Load reads a rule table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault reads path, falling back to DefaultTable when it does not exist.
func LoadOrDefault(path string) (*Table, bool, error) {
	if path == "" {
		return DefaultTable(), false, nil
	}
	t, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultTable(), false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

// Parse decodes and validates a YAML rule table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Save writes the table as YAML.
func (t *Table) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every rule and compiles its kinds and pattern.
func (t *Table) Validate() error {
	var errs []string
	seen := make(map[string]bool, len(t.Rules))

	for i, r := range t.Rules {
		if r == nil {
			errs = append(errs, fmt.Sprintf("rules[%d] is empty", i))
			continue
		}
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("rules[%d].name is required", i))
		} else if seen[r.Name] {
			errs = append(errs, fmt.Sprintf("rules[%d].name %q is duplicated", i, r.Name))
		}
		seen[r.Name] = true

		if _, err := r.prepare(); err != nil {
			errs = append(errs, err.Error())
		}
		if r.Dedupe < 0 {
			errs = append(errs, fmt.Sprintf("rule %q: dedupe must be non-negative", r.Name))
		}
		for _, ex := range r.Excludes {
			if containsString(r.Contains, ex) {
				errs = append(errs, fmt.Sprintf("rule %q both requires and excludes %q", r.Name, ex))
			}
		}
		for j, a := range r.Actions {
			if !containsString(ActionKinds, a.Kind) {
				errs = append(errs, fmt.Sprintf("rule %q actions[%d]: unknown kind %q", r.Name, j, a.Kind))
			}
			if a.Delay < 0 {
				errs = append(errs, fmt.Sprintf("rule %q actions[%d]: delay must be non-negative", r.Name, j))
			}
			if a.Kind == "webhook" && a.URL == "" {
				errs = append(errs, fmt.Sprintf("rule %q actions[%d]: webhook needs a url", r.Name, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid rules:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Lookup returns the rule with the given name, or nil.
func (t *Table) Lookup(name string) *Rule {
	for _, r := range t.Rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}
