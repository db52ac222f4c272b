// Package session owns the authenticated connection lifecycle: the session
// token and the interactive login challenge.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joebot/heyu/internal/prompt"
)

const (
	DefaultMaxAttempts   = 3
	DefaultPromptTimeout = 5 * time.Minute
)

// Challenge carries the state between requesting and entering a login code.
type Challenge struct {
	Identifier string
	Hash       string
}

// Authorizer is the login surface of a transport. Credential rejections are
// reported with ErrInvalidIdentifier, ErrInvalidCode, ErrPasswordNeeded and
// ErrInvalidPassword; any other error is a transport failure.
type Authorizer interface {
	// Authorized reports whether the session currently in the vault is usable.
	Authorized(ctx context.Context) (bool, error)
	RequestCode(ctx context.Context, identifier string) (Challenge, error)
	SignIn(ctx context.Context, ch Challenge, code string) error
	CheckPassword(ctx context.Context, password string) error
}

// Config holds the collaborators of a Manager.
type Config struct {
	Vault         *Vault
	Prompts       prompt.Resolver
	Store         Store // optional
	MaxAttempts   int
	PromptTimeout time.Duration
	OnError       func(error)
}

// Manager establishes authenticated connections.
type Manager struct {
	vault         *Vault
	prompts       prompt.Resolver
	store         Store
	maxAttempts   int
	promptTimeout time.Duration
	onError       func(error)
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	if cfg.Vault == nil {
		cfg.Vault = &Vault{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = DefaultPromptTimeout
	}
	if cfg.OnError == nil {
		cfg.OnError = func(err error) { slog.Warn("login error", "err", err) }
	}
	return &Manager{
		vault:         cfg.Vault,
		prompts:       cfg.Prompts,
		store:         cfg.Store,
		maxAttempts:   cfg.MaxAttempts,
		promptTimeout: cfg.PromptTimeout,
		onError:       cfg.OnError,
	}
}

// Vault returns the token holder shared with the transport.
func (m *Manager) Vault() *Vault { return m.vault }

// ExportToken returns the current session token.
func (m *Manager) ExportToken() (string, error) { return m.vault.Token() }

// Connect authenticates a. A usable stored session skips every prompt;
// otherwise the operator is walked through identifier, code and, when the
// account requires it, password.
func (m *Manager) Connect(ctx context.Context, a Authorizer) error {
	if m.vault.Has() {
		ok, err := a.Authorized(ctx)
		if err != nil {
			m.onError(err)
			return fmt.Errorf("check session: %w", err)
		}
		if ok {
			slog.Info("Session resumed")
			return nil
		}
		slog.Info("Session not authorized, login required")
	}

	if m.prompts == nil {
		return errors.New("login required but no prompt is available")
	}

	ch, err := m.requestCode(ctx, a)
	if err != nil {
		return err
	}
	if err := m.signIn(ctx, a, ch); err != nil {
		return err
	}

	slog.Info("You should now be connected.")
	return m.persist(ctx)
}

func (m *Manager) requestCode(ctx context.Context, a Authorizer) (Challenge, error) {
	var ch Challenge
	err := m.attempt(ctx, prompt.Identifier, func(answer string) error {
		var err error
		ch, err = a.RequestCode(ctx, answer)
		return err
	})
	return ch, err
}

func (m *Manager) signIn(ctx context.Context, a Authorizer, ch Challenge) error {
	err := m.attempt(ctx, prompt.Code, func(answer string) error {
		return a.SignIn(ctx, ch, answer)
	})
	if !errors.Is(err, ErrPasswordNeeded) {
		return err
	}
	return m.attempt(ctx, prompt.Password, func(answer string) error {
		return a.CheckPassword(ctx, answer)
	})
}

// attempt asks name until step accepts the answer, at most maxAttempts times.
// ErrPasswordNeeded ends the loop so the caller can move to the next step.
func (m *Manager) attempt(ctx context.Context, name prompt.Name, step func(answer string) error) error {
	for i := 1; i <= m.maxAttempts; i++ {
		answer, err := m.ask(ctx, name)
		if err != nil {
			return err
		}
		if answer == "" {
			m.onError(fmt.Errorf("%s: empty answer", name))
			continue
		}

		err = step(answer)
		switch {
		case err == nil, errors.Is(err, ErrPasswordNeeded):
			return err
		case IsCredentialError(err):
			m.onError(err)
			slog.Warn("Credential rejected", "prompt", string(name), "attempt", i, "of", m.maxAttempts)
		default:
			m.onError(err)
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return fmt.Errorf("%s: %w", name, ErrTooManyAttempts)
}

func (m *Manager) ask(ctx context.Context, name prompt.Name) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.promptTimeout)
	defer cancel()

	answer, err := m.prompts.Resolve(ctx, name)
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", name, err)
	}
	return strings.TrimSpace(answer), nil
}

func (m *Manager) persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	token, err := m.vault.Token()
	if err != nil {
		// The transport did not hand back a session; nothing to keep.
		if errors.Is(err, ErrNoToken) {
			return nil
		}
		return err
	}
	if err := m.store.Save(ctx, token); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	slog.Info("Session saved")
	return nil
}
