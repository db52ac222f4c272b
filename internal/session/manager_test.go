package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joebot/heyu/internal/prompt"
)

// fakeServer is an Authorizer backed by a fixed account.
type fakeServer struct {
	vault    *Vault
	phone    string
	code     string
	password string
	session  []byte

	downErr error
}

func newFakeServer(v *Vault, password string) *fakeServer {
	return &fakeServer{
		vault:    v,
		phone:    "+886912345678",
		code:     "12345",
		password: password,
		session:  []byte(`{"dc":5,"auth_key":"k"}`),
	}
}

func (f *fakeServer) Authorized(context.Context) (bool, error) {
	if f.downErr != nil {
		return false, f.downErr
	}
	data, err := f.vault.Load()
	if err != nil {
		return false, nil
	}
	return string(data) == string(f.session), nil
}

func (f *fakeServer) RequestCode(_ context.Context, phone string) (Challenge, error) {
	if f.downErr != nil {
		return Challenge{}, f.downErr
	}
	if phone != f.phone {
		return Challenge{}, ErrInvalidIdentifier
	}
	return Challenge{Identifier: phone, Hash: "h"}, nil
}

func (f *fakeServer) SignIn(_ context.Context, ch Challenge, code string) error {
	if ch.Hash != "h" || code != f.code {
		return ErrInvalidCode
	}
	if f.password != "" {
		return ErrPasswordNeeded
	}
	f.vault.Store(f.session)
	return nil
}

func (f *fakeServer) CheckPassword(_ context.Context, password string) error {
	if password != f.password {
		return ErrInvalidPassword
	}
	f.vault.Store(f.session)
	return nil
}

func TestConnectRoundTripSkipsPrompts(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "session"), "")

	// First run: no token, full challenge including the second factor.
	first := &Vault{}
	answers := prompt.NewScripted(map[prompt.Name][]string{
		prompt.Identifier: {"+886912345678"},
		prompt.Code:       {"12345"},
		prompt.Password:   {"hunter2"},
	})
	m := NewManager(Config{Vault: first, Prompts: answers, Store: store})
	if err := m.Connect(ctx, newFakeServer(first, "hunter2")); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if got := answers.Asked(); len(got) != 3 {
		t.Fatalf("first run asked %v, want three prompts", got)
	}
	token, err := m.ExportToken()
	if err != nil || token == "" {
		t.Fatalf("ExportToken = %q, %v", token, err)
	}
	saved, err := store.Load(ctx)
	if err != nil || saved != token {
		t.Fatalf("stored token = %q, %v; want exported token", saved, err)
	}

	// Second run: token supplied, no prompt may be asked.
	second, err := NewVault(token)
	if err != nil {
		t.Fatal(err)
	}
	silent := prompt.NewScripted(nil)
	m2 := NewManager(Config{Vault: second, Prompts: silent})
	if err := m2.Connect(ctx, newFakeServer(second, "hunter2")); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if got := silent.Asked(); len(got) != 0 {
		t.Errorf("second run asked %v, want none", got)
	}
}

func TestConnectRepromptsOnInvalidCredentials(t *testing.T) {
	v := &Vault{}
	var reported []error
	answers := prompt.NewScripted(map[prompt.Name][]string{
		prompt.Identifier: {"+1000", "+886912345678"},
		prompt.Code:       {"00000", "", "12345"},
	})
	m := NewManager(Config{
		Vault:   v,
		Prompts: answers,
		OnError: func(err error) { reported = append(reported, err) },
	})

	if err := m.Connect(context.Background(), newFakeServer(v, "")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !v.Has() {
		t.Error("vault should hold the new session")
	}
	if len(reported) != 3 {
		t.Errorf("reported %d errors, want 3 (bad phone, bad code, empty code): %v", len(reported), reported)
	}
	if !errors.Is(reported[0], ErrInvalidIdentifier) || !errors.Is(reported[1], ErrInvalidCode) {
		t.Errorf("unexpected reported errors: %v", reported)
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	v := &Vault{}
	answers := prompt.NewScripted(map[prompt.Name][]string{
		prompt.Identifier: {"+886912345678"},
		prompt.Code:       {"1", "2"},
	})
	m := NewManager(Config{Vault: v, Prompts: answers, MaxAttempts: 2, OnError: func(error) {}})

	err := m.Connect(context.Background(), newFakeServer(v, ""))
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("Connect = %v, want ErrTooManyAttempts", err)
	}
	if v.Has() {
		t.Error("failed login must not leave a session behind")
	}
}

func TestConnectTransportFailureIsFatal(t *testing.T) {
	v := &Vault{}
	down := errors.New("dial tcp: connection refused")
	srv := newFakeServer(v, "")
	srv.downErr = down

	var reported []error
	answers := prompt.NewScripted(map[prompt.Name][]string{
		prompt.Identifier: {"+886912345678", "+886912345678"},
	})
	m := NewManager(Config{Vault: v, Prompts: answers, OnError: func(err error) { reported = append(reported, err) }})

	err := m.Connect(context.Background(), srv)
	if !errors.Is(err, down) {
		t.Fatalf("Connect = %v, want transport error", err)
	}
	if len(reported) != 1 {
		t.Errorf("onError called %d times, want 1", len(reported))
	}
	if got := answers.Asked(); len(got) != 1 {
		t.Errorf("transport failures must not be retried, asked %v", got)
	}
}

func TestConnectExpiredTokenFallsBackToLogin(t *testing.T) {
	v, err := NewVault("c3RhbGU=") // "stale"
	if err != nil {
		t.Fatal(err)
	}
	answers := prompt.NewScripted(map[prompt.Name][]string{
		prompt.Identifier: {"+886912345678"},
		prompt.Code:       {"12345"},
	})
	m := NewManager(Config{Vault: v, Prompts: answers})
	if err := m.Connect(context.Background(), newFakeServer(v, "")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(answers.Asked()) != 2 {
		t.Errorf("expected a fresh login, asked %v", answers.Asked())
	}
}

func TestNewVaultRejectsGarbage(t *testing.T) {
	if _, err := NewVault("not base64!"); err == nil {
		t.Error("NewVault should reject a malformed token")
	}
	v, err := NewVault("  ")
	if err != nil || v.Has() {
		t.Errorf("blank token: Has=%v err=%v", v.Has(), err)
	}
	if _, err := v.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty vault Token() = %v, want ErrNoToken", err)
	}
}

func TestFileStoreSealing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session")

	sealed := NewFileStore(path, "correct horse")
	if err := sealed.Save(ctx, "dG9rZW4="); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "dG9rZW4=") || !strings.HasPrefix(string(raw), sealedPrefix) {
		t.Errorf("token stored in the clear: %q", raw)
	}

	got, err := sealed.Load(ctx)
	if err != nil || got != "dG9rZW4=" {
		t.Fatalf("Load = %q, %v", got, err)
	}
	if _, err := NewFileStore(path, "wrong").Load(ctx); err == nil {
		t.Error("wrong key should not open the session")
	}
	if _, err := NewFileStore(path, "").Load(ctx); err == nil {
		t.Error("sealed file without a key should be an error")
	}
	if _, err := NewFileStore(filepath.Join(t.TempDir(), "none"), "").Load(ctx); !errors.Is(err, ErrNoToken) {
		t.Errorf("missing file = %v, want ErrNoToken", err)
	}
}

func TestConnectPromptTimeout(t *testing.T) {
	v := &Vault{}
	stuck := prompt.Func(func(ctx context.Context, _ prompt.Name) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := NewManager(Config{Vault: v, Prompts: stuck, PromptTimeout: 20 * time.Millisecond})

	err := m.Connect(context.Background(), newFakeServer(v, ""))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect = %v, want deadline exceeded", err)
	}
}
