package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joebot/heyu/internal/journal"
	"github.com/joebot/heyu/internal/rule"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func defaultRulesFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := rule.DefaultTable().Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRulesEval(t *testing.T) {
	rules := defaultRulesFile(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"roll call", []string{"--chat", "639022533", "--sender", "@junml1107hr2", "点名 在岗 同事回复"}, "roll-call"},
		{"results post", []string{"--chat", "639022533", "--sender", "junml1107hr2", "点名 在岗 同事回复 结果"}, "no rule matches"},
		{"no sender", []string{"--chat", "639022533", "点名 在岗 同事回复"}, "no rule matches"},
		{"broadcast", []string{"--kind", "broadcast", "--chat", "639022533", "--sender", "junml1107hr2", "点名 在岗 同事回复"}, "no rule matches"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"rules", "eval", "-f", rules}, tt.args...)...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestRulesEvalBotSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(path, []byte(`
rules:
  - name: mxf-signal
    senders: [taiwan_mxf_bot]
    bots: true
    contains: [訊號通知]
    pattern: '(空|多)\s*(\d+)\s*口'
    dedupe: 10s
`), 0o644)

	out, err := execute(t, "rules", "eval", "-f", path, "--kind", "direct", "--sender", "taiwan_mxf_bot", "--bot", "訊號通知 空 1 口")
	if err != nil || !strings.Contains(out, "mxf-signal") {
		t.Errorf("bot signal: out %q, err %v", out, err)
	}
	out, err = execute(t, "rules", "eval", "-f", path, "--kind", "direct", "--sender", "taiwan_mxf_bot", "訊號通知 空 1 口")
	if err != nil || !strings.Contains(out, "no rule matches") {
		t.Errorf("non-bot sender: out %q, err %v", out, err)
	}
	out, err = execute(t, "rules", "check", "-f", path)
	if err != nil || !strings.Contains(out, "bots only") || !strings.Contains(out, "10s") {
		t.Errorf("check output %q, err %v", out, err)
	}
}

func TestRulesCheck(t *testing.T) {
	out, err := execute(t, "rules", "check", "-f", defaultRulesFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "roll-call") || !strings.Contains(out, "1 rules") {
		t.Errorf("unexpected output:\n%s", out)
	}

	bad := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(bad, []byte("rules:\n  - name: ship\n    actions:\n      - kind: kafka\n"), 0o644)
	_, err = execute(t, "rules", "check", "-f", bad)
	if err == nil || exitCode(err) != exitConfig {
		t.Errorf("kafka without brokers: err = %v, exit %d", err, exitCode(err))
	}

	_, err = execute(t, "rules", "check", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	if exitCode(err) != exitConfig {
		t.Errorf("missing explicit rule file should be a config error, got %v", err)
	}
}

func TestRunRejectsIncompleteConfig(t *testing.T) {
	t.Setenv("TG_API_ID", "")
	t.Setenv("TG_API_HASH", "")
	_, err := execute(t, "run")
	if err == nil {
		t.Fatal("run without api credentials should fail")
	}
	if exitCode(err) != exitConfig {
		t.Errorf("exit code = %d, want %d (%v)", exitCode(err), exitConfig, err)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(errors.New("connection reset")) != exitRuntime {
		t.Error("runtime errors exit 1")
	}
	wrapped := configError{errors.New("bad")}
	if exitCode(wrapped) != exitConfig {
		t.Error("config errors exit 2")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "heyu v") {
		t.Errorf("version output = %q", out)
	}
}

func TestCountMatches(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	ctx := context.Background()
	for i, name := range []string{"roll-call", "roll-call", "retired"} {
		e := journal.Entry{ID: fmt.Sprint(i), Rule: name, Channel: "telegram", ChatID: "639022533", MatchedAt: time.Now()}
		if err := j.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	total, per, err := countMatches(ctx, j, rule.DefaultTable())
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || per["roll-call"] != 2 || len(per) != 1 {
		t.Errorf("total = %d, per rule = %v", total, per)
	}
}

func TestPickToken(t *testing.T) {
	tests := []struct {
		name, env, stored, want string
	}{
		{"nothing", "", "", ""},
		{"env only", "ZW52", "", "ZW52"},
		{"stored only", "", "c3RvcmVk", "c3RvcmVk"},
		{"stored after a re-login wins", "ZW52", "c3RvcmVk", "c3RvcmVk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickToken(tt.env, tt.stored); got != tt.want {
				t.Errorf("pickToken(%q, %q) = %q, want %q", tt.env, tt.stored, got, tt.want)
			}
		})
	}
}
