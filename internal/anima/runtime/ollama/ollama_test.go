package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Anima/internal/anima/runtime"
)

type fakeDaemon struct {
	chunks   []string
	lastGen  map[string]any
	embed    [][]float32
	hold     chan struct{}
	canceled chan struct{}
}

func (f *fakeDaemon) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.lastGen); err != nil {
			t.Errorf("decode generate request: %v", err)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		for _, c := range f.chunks {
			b, _ := json.Marshal(map[string]any{"model": "m", "response": c, "done": false})
			fmt.Fprintf(w, "%s\n", b)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if f.hold != nil {
			select {
			case <-f.hold:
			case <-r.Context().Done():
				close(f.canceled)
				return
			}
		}
		fmt.Fprintln(w, `{"model":"m","response":"","done":true,"done_reason":"stop"}`)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "embedder" {
			t.Errorf("embed model = %v", req["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{"model": "embedder", "embeddings": f.embed})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDaemon) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{Host: srv.URL, ChatModel: "llama3", EmbedModel: "embedder"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_StreamsFragments(t *testing.T) {
	f := &fakeDaemon{chunks: []string{"Hel", "lo", " there"}}
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	toks, err := c.Tokenize(ctx, "hello prompt")
	if err != nil || len(toks) == 0 {
		t.Fatalf("Tokenize = %v, %v", toks, err)
	}
	dec, err := c.Start(ctx, runtime.Prompt{Text: "<|begin_of_text|>hi", Tokens: toks}, runtime.NewSamplerConfig(0.5, 64))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer dec.Close()

	var sb strings.Builder
	for {
		frag, err := dec.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sb.Write(frag.Bytes)
		if frag.EOG {
			break
		}
	}
	if sb.String() != "Hello there" {
		t.Errorf("streamed %q", sb.String())
	}

	if f.lastGen["raw"] != true {
		t.Errorf("raw = %v, want true", f.lastGen["raw"])
	}
	if f.lastGen["prompt"] != "<|begin_of_text|>hi" {
		t.Errorf("prompt = %v", f.lastGen["prompt"])
	}
	opts, _ := f.lastGen["options"].(map[string]any)
	if opts["num_predict"] != float64(64) || opts["top_k"] != float64(40) || opts["repeat_last_n"] != float64(128) {
		t.Errorf("options = %v", opts)
	}
}

func TestClient_CloseCancelsStream(t *testing.T) {
	f := &fakeDaemon{chunks: []string{"partial"}, hold: make(chan struct{}), canceled: make(chan struct{})}
	c := newTestClient(t, f)
	ctx := context.Background()

	dec, err := c.Start(ctx, runtime.Prompt{Text: "x", Tokens: []runtime.Token{1}}, runtime.SamplerConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if frag, err := dec.Next(ctx); err != nil || string(frag.Bytes) != "partial" {
		t.Fatalf("first Next = %q, %v", frag.Bytes, err)
	}
	dec.Close()

	select {
	case <-f.canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("server request was not cancelled")
	}
	if frag, err := dec.Next(ctx); err != nil || !frag.EOG {
		t.Errorf("Next after Close = %+v, %v", frag, err)
	}
}

func TestClient_ContextOverflow(t *testing.T) {
	c := newTestClient(t, &fakeDaemon{})
	c.cfg.ContextSize = 4
	_, err := c.Start(context.Background(), runtime.Prompt{Tokens: make([]runtime.Token, 8)}, runtime.SamplerConfig{})
	if !errors.Is(err, runtime.ErrContextOverflow) {
		t.Fatalf("expected ErrContextOverflow, got %v", err)
	}
}

func TestClient_Embed(t *testing.T) {
	f := &fakeDaemon{embed: [][]float32{{0.25, -0.5, 1}}}
	c := newTestClient(t, f)
	vec, err := c.Embed(context.Background(), "hola")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != -0.5 {
		t.Errorf("Embed = %v", vec)
	}

	f.embed = nil
	vec, err = c.Embed(context.Background(), "hola")
	if err != nil || len(vec) != 0 {
		t.Errorf("empty Embed = %v, %v", vec, err)
	}
}

func TestOptions_Greedy(t *testing.T) {
	opts := Options(runtime.SamplerConfig{Temperature: 0, MaxTokens: 10}, 2048)
	if opts["temperature"] != 0.0 || opts["top_k"] != 1 {
		t.Errorf("greedy options = %v", opts)
	}
	if _, ok := opts["top_p"]; ok {
		t.Error("greedy options should not carry top_p")
	}
}
