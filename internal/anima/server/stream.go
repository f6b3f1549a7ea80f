package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/observability"
)

// Frame types sent on /chat/stream.
const (
	FrameChunk = "chunk"
	FrameDone  = "done"
	FrameError = "error"
)

// Frame is one server-to-client WebSocket message.
type Frame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	writeWait = 10 * time.Second
	// idleWait closes a stream connection that sends no request for this
	// long.
	idleWait = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleStream upgrades to a WebSocket and answers each app.ChatRequest the
// client sends with chunk frames followed by a done or error frame. One turn
// is streamed at a time; the next request is read after the previous turn
// ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	log := observability.WithTrace(ctx, s.logger)
	log.Debug("server: stream opened", "remote", r.RemoteAddr)

	for {
		conn.SetReadDeadline(time.Now().Add(idleWait))
		var req app.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("server: stream closed", "err", err)
			}
			return
		}
		if err := s.streamTurn(conn, r, req); err != nil {
			log.Debug("server: stream write failed", "err", err)
			return
		}
	}
}

// streamTurn runs one turn. It returns an error only when the connection is
// no longer writable.
func (s *Server) streamTurn(conn *websocket.Conn, r *http.Request, req app.ChatRequest) error {
	ctx := r.Context()
	send := func(f Frame) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(f)
	}

	g, err := s.backend.SendMessageStream(ctx, req)
	if err != nil {
		return send(Frame{Type: FrameError, Error: app.UserMessage(err)})
	}

	var writeErr error
	for chunk := range g.Chunks() {
		if writeErr = send(Frame{Type: FrameChunk, Text: chunk}); writeErr != nil {
			break
		}
	}
	// Chunks has closed the generation; Result holds whatever was emitted.
	reply := g.Result()
	if reply != "" && g.Err() == nil {
		if _, err := s.backend.SaveAssistantMessage(ctx, reply); err != nil {
			observability.WithTrace(ctx, s.logger).Warn("server: store streamed reply", "err", err)
		}
	}
	if writeErr != nil {
		return writeErr
	}
	if err := g.Err(); err != nil {
		return send(Frame{Type: FrameError, Error: app.UserMessage(err)})
	}
	if reply == "" {
		reply = app.FallbackReply
	}
	return send(Frame{Type: FrameDone, Text: reply})
}
