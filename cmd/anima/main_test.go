package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bdobrica/Anima/common/version"
	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/runtime/runtimetest"
)

// harness runs anima commands against one temp database with scripted
// models.
type harness struct {
	t    *testing.T
	db   string
	chat *runtimetest.Chat
}

func newHarness(t *testing.T, replies ...string) *harness {
	t.Helper()
	t.Setenv("ANIMA_CONFIG", "")
	chat := &runtimetest.Chat{}
	for _, r := range replies {
		chat.Replies = append(chat.Replies, []string{r})
	}
	return &harness{t: t, db: filepath.Join(t.TempDir(), "anima.db"), chat: chat}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	emb := &runtimetest.Embedder{}
	cmd := newRootCmd(app.WithLoader(runtime.Loader{
		Chat:     func(context.Context) (runtime.ChatModel, error) { return h.chat, nil },
		Embedder: func(context.Context) (runtime.Embedder, error) { return emb, nil },
	}))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--db", h.db, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("anima %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestVersion(t *testing.T) {
	out := newHarness(t).mustRun("version")
	if strings.TrimSpace(out) != version.Info() {
		t.Errorf("version = %q", out)
	}
}

func TestConfigSetGet(t *testing.T) {
	h := newHarness(t)
	if out := h.mustRun("config", "set", "user_name", "Ana"); !strings.Contains(out, "user_name=Ana") {
		t.Errorf("set output = %q", out)
	}
	if out := h.mustRun("config", "get", "user_name"); strings.TrimSpace(out) != "Ana" {
		t.Errorf("get output = %q", out)
	}
	all := h.mustRun("config", "get")
	for _, want := range []string{"user_name=Ana", "temperature=0.700", "app_language="} {
		if !strings.Contains(all, want) {
			t.Errorf("config get lacks %q:\n%s", want, all)
		}
	}
	if _, err := h.run("config", "get", "shoe_size"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestConfigShow(t *testing.T) {
	out := newHarness(t).mustRun("config", "show")
	if !strings.Contains(out, "database_path:") || !strings.Contains(out, "embedder: ollama") {
		t.Errorf("config show = %q", out)
	}
}

func TestProfileCommands(t *testing.T) {
	h := newHarness(t)
	if out := h.mustRun("profile"); !strings.Contains(out, "empty") {
		t.Errorf("empty profile output = %q", out)
	}
	h.mustRun("profile", "add", "pets", "has a cat called Miso")
	if out := h.mustRun("profile"); !strings.Contains(out, "[pets] has a cat called Miso") {
		t.Errorf("profile = %q", out)
	}
	h.mustRun("profile", "clear")
	if out := h.mustRun("profile"); !strings.Contains(out, "empty") {
		t.Errorf("profile after clear = %q", out)
	}
}

func TestChatOneShotAndHistory(t *testing.T) {
	h := newHarness(t, "Hola Ana")
	if out := h.mustRun("chat", "hola"); strings.TrimSpace(out) != "Hola Ana" {
		t.Errorf("chat output = %q", out)
	}
	out := h.mustRun("history")
	if !strings.Contains(out, "user: hola") || !strings.Contains(out, "assistant: Hola Ana") {
		t.Errorf("history = %q", out)
	}

	mems := h.mustRun("memories", "list", "-q", "hola")
	if !strings.Contains(mems, "hola") {
		t.Errorf("memories list = %q", mems)
	}
	if _, err := h.run("memories", "forget", "zero"); err == nil {
		t.Error("expected an error for a non-numeric id")
	}
	if out := h.mustRun("memories", "forget", "1"); !strings.Contains(out, "Forgot memory 1") {
		t.Errorf("forget output = %q", out)
	}
}

func TestChatInteractive(t *testing.T) {
	h := newHarness(t, "first", "second")
	emb := &runtimetest.Embedder{}
	cmd := newRootCmd(app.WithLoader(runtime.Loader{
		Chat:     func(context.Context) (runtime.ChatModel, error) { return h.chat, nil },
		Embedder: func(context.Context) (runtime.Embedder, error) { return emb, nil },
	}))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("one\n\ntwo\n/quit\nthree\n"))
	cmd.SetArgs([]string{"--db", h.db, "--log-level", "error", "chat", "--greet=false"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got := out.String(); got != "first\nsecond\n" {
		t.Errorf("output = %q", got)
	}
}

func TestSleepNoop(t *testing.T) {
	if out := newHarness(t).mustRun("sleep"); !strings.Contains(out, "Nothing to consolidate") {
		t.Errorf("sleep output = %q", out)
	}
}

func TestExportBrain(t *testing.T) {
	h := newHarness(t)
	h.mustRun("config", "set", "user_name", "Ana")
	var doc app.BrainExport
	if err := json.Unmarshal([]byte(h.mustRun("export", "brain")), &doc); err != nil {
		t.Fatalf("export brain is not JSON: %v", err)
	}
	if doc.UserName != "Ana" {
		t.Errorf("user_name = %q", doc.UserName)
	}

	dest := filepath.Join(t.TempDir(), "copy.db")
	if out := h.mustRun("export", "db", dest); !strings.Contains(out, dest) {
		t.Errorf("export db output = %q", out)
	}
}

func TestResetNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.mustRun("config", "set", "user_name", "Ana")
	if _, err := h.run("reset"); err == nil {
		t.Fatal("reset without --yes should fail")
	}
	h.mustRun("reset", "--yes")
	if out := h.mustRun("config", "get", "user_name"); strings.TrimSpace(out) != "" {
		t.Errorf("user_name after reset = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ñandú corre muy rápido", 10); got != "ñandú c..." {
		t.Errorf("truncate = %q", got)
	}
}
