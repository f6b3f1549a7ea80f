package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bdobrica/Anima/common/trace"
	"github.com/bdobrica/Anima/internal/anima/app"
	"github.com/bdobrica/Anima/internal/anima/observability"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/sleep"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// TraceHeader carries the request's trace ID in both directions.
const TraceHeader = "X-Trace-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: connection does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(TraceHeader); id != "" {
			ctx = trace.WithTraceID(ctx, id)
		} else {
			ctx = trace.Ensure(ctx)
		}
		w.Header().Set(TraceHeader, trace.FromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		observability.WithTrace(ctx, s.logger).Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runtime.ErrNotInitialized), errors.Is(err, runtime.ErrInitFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrUnknownSetting), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sleep.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, sleep.ErrParse):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrTimeout):
		return http.StatusGatewayTimeout
	case store.IsBusy(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := observability.WithTrace(r.Context(), s.logger)
	if code >= 500 {
		log.Warn("server: request failed", "path", r.URL.Path, "status", code, "err", err)
	} else {
		log.Debug("server: request rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, errorResponse{Error: app.UserMessage(err), Detail: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// decode reads a JSON body of at most maxBodyBytes into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request: "+err.Error())
		return false
	}
	return true
}
