package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/runtime/runtimetest"
	"github.com/bdobrica/Anima/internal/anima/sleep"
	"github.com/bdobrica/Anima/internal/anima/store"
)

func newTestService(t *testing.T, chat runtime.ChatModel, init bool) *app.Service {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.DatabasePath = ":memory:"
	emb := &runtimetest.Embedder{}
	svc, err := app.New(context.Background(), cfg, app.WithLoader(runtime.Loader{
		Chat:     func(context.Context) (runtime.ChatModel, error) { return chat, nil },
		Embedder: func(context.Context) (runtime.Embedder, error) { return emb, nil },
	}))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	if init {
		if err := svc.Init(context.Background()); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	return svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	svc := newTestService(t, runtimetest.NewChat("x"), false)
	srv := New("", svc)

	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	h := decodeBody[healthResponse](t, rec)
	if h.Ready || h.Error != app.MsgNotReady {
		t.Errorf("before init: %+v", h)
	}
	if rec.Header().Get(TraceHeader) == "" {
		t.Error("no trace ID in response")
	}

	svc.Init(context.Background())
	h = decodeBody[healthResponse](t, do(t, srv, http.MethodGet, "/health", ""))
	if !h.Ready || h.Error != "" {
		t.Errorf("after init: %+v", h)
	}
}

func TestTraceHeaderIsEchoed(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("x"), true))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "t_fixed")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get(TraceHeader); got != "t_fixed" {
		t.Errorf("trace header = %q", got)
	}
}

func TestChatAndHistory(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("Hello", " there"), true))

	rec := do(t, srv, http.MethodPost, "/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[chatResponse](t, rec).Reply; got != "Hello there" {
		t.Errorf("reply = %q", got)
	}

	history := decodeBody[[]store.Message](t, do(t, srv, http.MethodGet, "/history", ""))
	if len(history) != 2 || history[1].Content != "Hello there" {
		t.Errorf("history = %+v", history)
	}
}

func TestChat_Errors(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("x"), false))

	rec := do(t, srv, http.MethodPost, "/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready: status = %d", rec.Code)
	}
	if e := decodeBody[errorResponse](t, rec); e.Error != app.MsgNotReady {
		t.Errorf("not ready: %+v", e)
	}

	if rec := do(t, srv, http.MethodPost, "/chat", `{"message":`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/chat", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /chat: status = %d", rec.Code)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("x"), true))
	rec := do(t, srv, http.MethodPost, "/chat", `{"message": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("x"), false))

	rec := do(t, srv, http.MethodPut, "/config/user_name", `{"value": "Ana"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body)
	}
	got := decodeBody[settingResponse](t, do(t, srv, http.MethodGet, "/config/user_name", ""))
	if got.Value != "Ana" {
		t.Errorf("user_name = %+v", got)
	}

	got = decodeBody[settingResponse](t, do(t, srv, http.MethodPut, "/config/temperature", `{"value": "3"}`))
	if got.Value != "1.000" {
		t.Errorf("temperature not clamped: %+v", got)
	}

	if rec := do(t, srv, http.MethodGet, "/config/shoe_size", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown key: status = %d", rec.Code)
	}
}

func TestProfile(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("x"), false))

	if rec := do(t, srv, http.MethodPost, "/profile", `{"category": "pets", "content": "has a cat"}`); rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodPost, "/profile", `{"category": "pets"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing content: status = %d", rec.Code)
	}
	traits := decodeBody[[]store.ProfileTrait](t, do(t, srv, http.MethodGet, "/profile", ""))
	if len(traits) != 1 || traits[0].Content != "has a cat" {
		t.Errorf("profile = %+v", traits)
	}
	if rec := do(t, srv, http.MethodDelete, "/profile", ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	traits = decodeBody[[]store.ProfileTrait](t, do(t, srv, http.MethodGet, "/profile", ""))
	if len(traits) != 0 {
		t.Errorf("profile after clear = %+v", traits)
	}
}

func TestMemories(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("noted"), true))
	do(t, srv, http.MethodPost, "/chat", `{"message": "my cat is called Miso"}`)

	mems := decodeBody[[]store.Memory](t, do(t, srv, http.MethodGet, "/memories?q=Miso", ""))
	if len(mems) != 1 {
		t.Fatalf("search = %+v", mems)
	}
	path := "/memories/" + strconv.FormatInt(mems[0].MessageID, 10)
	if rec := do(t, srv, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	mems = decodeBody[[]store.Memory](t, do(t, srv, http.MethodGet, "/memories", ""))
	if len(mems) != 1 {
		t.Errorf("memories left = %+v, want only the reply", mems)
	}
	if rec := do(t, srv, http.MethodDelete, "/memories/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", rec.Code)
	}
}

func TestSleepResetAndExport(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("x"), true))

	rec := do(t, srv, http.MethodPost, "/sleep", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sleep status = %d: %s", rec.Code, rec.Body)
	}
	if res := decodeBody[sleep.Result](t, rec); res.Status != sleep.StatusNoop {
		t.Errorf("sleep = %+v", res)
	}

	bad := filepath.Join(t.TempDir(), "missing", "out.db")
	if rec := do(t, srv, http.MethodPost, "/export", `{"path": "`+bad+`"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("export to missing dir: status = %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/export/brain", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("brain status = %d", rec.Code)
	}
	if doc := decodeBody[app.BrainExport](t, rec); doc.Memories == nil {
		t.Errorf("brain export has no memories list: %s", rec.Body)
	}

	if rec := do(t, srv, http.MethodPost, "/reset", ""); rec.Code != http.StatusNoContent {
		t.Errorf("reset status = %d", rec.Code)
	}
}

func TestGreeting(t *testing.T) {
	srv := New("", newTestService(t, runtimetest.NewChat("Good evening!"), true))
	rec := do(t, srv, http.MethodGet, "/greeting?time_of_day=night", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[greetingResponse](t, rec).Greeting; got != "Good evening!" {
		t.Errorf("greeting = %q", got)
	}
}

func dialStream(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readTurn collects frames until done or error.
func readTurn(t *testing.T, conn *websocket.Conn) (chunks string, last Frame) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Type == FrameChunk {
			chunks += f.Text
			continue
		}
		return chunks, f
	}
}

func TestStream_StopsAtMarker(t *testing.T) {
	svc := newTestService(t, runtimetest.NewChat("Hello", "\nUser:", " pretend turn"), true)
	conn := dialStream(t, New("", svc))

	if err := conn.WriteJSON(app.ChatRequest{Message: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	chunks, last := readTurn(t, conn)
	if last.Type != FrameDone || last.Text != "Hello" {
		t.Fatalf("last frame = %+v", last)
	}
	if chunks != "Hello" {
		t.Errorf("chunks = %q, want only the text before the marker", chunks)
	}

	history, _ := svc.ChatHistory(context.Background())
	if len(history) != 2 || history[1].Content != "Hello" {
		t.Errorf("history = %+v", history)
	}
}

func TestStream_SeveralTurnsAndErrors(t *testing.T) {
	chat := &runtimetest.Chat{Replies: [][]string{{"one"}, {"two"}}}
	svc := newTestService(t, chat, true)
	conn := dialStream(t, New("", svc))

	for _, want := range []string{"one", "two"} {
		conn.WriteJSON(app.ChatRequest{Message: "next"})
		if _, last := readTurn(t, conn); last.Type != FrameDone || last.Text != want {
			t.Errorf("turn %q: last frame = %+v", want, last)
		}
	}

	conn.WriteJSON(app.ChatRequest{Message: "  "})
	if _, last := readTurn(t, conn); last.Type != FrameError || last.Error != app.MsgEmptyMessage {
		t.Errorf("empty turn: %+v", last)
	}
}
