package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Loader builds the models on first use. Embedder may be nil, in which case
// Embed always returns an empty vector.
type Loader struct {
	Chat     func(ctx context.Context) (ChatModel, error)
	Embedder func(ctx context.Context) (Embedder, error)
}

// Manager owns the loaded models.
type Manager struct {
	loader Loader
	logger *slog.Logger

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	chat     ChatModel
	embedder Embedder

	// Semaphores rather than sync.Mutex so waiting callers can give up when
	// their context ends. Lock order is backend, then role.
	backend chan struct{}
	chatMu  chan struct{}
	embedMu chan struct{}
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager returns a Manager that loads models through loader when Init is
// first called.
func NewManager(loader Loader, opts ...ManagerOption) *Manager {
	m := &Manager{
		loader:   loader,
		logger:   slog.Default(),
		initDone: make(chan struct{}),
		backend:  make(chan struct{}, 1),
		chatMu:   make(chan struct{}, 1),
		embedMu:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads both models. Only the first call does any work; every call
// returns the same result.
func (m *Manager) Init(ctx context.Context) error {
	m.initOnce.Do(func() {
		defer close(m.initDone)
		m.initErr = m.load(ctx)
		if m.initErr != nil {
			m.logger.Error("runtime: initialization failed", "err", m.initErr)
			return
		}
		m.logger.Info("runtime: models ready", "embedder", m.embedder != nil)
	})
	return m.initErr
}

func (m *Manager) load(ctx context.Context) error {
	if m.loader.Chat == nil {
		return &InitError{Component: "chat", Err: ErrNotInitialized}
	}
	chat, err := m.loader.Chat(ctx)
	if err != nil {
		return &InitError{Component: "chat", Err: err}
	}
	m.chat = chat

	if m.loader.Embedder != nil {
		emb, err := m.loader.Embedder(ctx)
		if err != nil {
			return &InitError{Component: "embedder", Err: err}
		}
		m.embedder = emb
	}
	return nil
}

// Ready reports whether Init has completed successfully.
func (m *Manager) Ready() bool {
	return m.state() == nil
}

// Err returns nil once the models are loaded, ErrNotInitialized before Init
// has finished and the sticky *InitError after a failed Init.
func (m *Manager) Err() error {
	return m.state()
}

// state returns nil once the models are loaded, ErrNotInitialized before
// Init finishes, and the sticky init error after a failed Init.
func (m *Manager) state() error {
	select {
	case <-m.initDone:
		return m.initErr
	default:
		return ErrNotInitialized
	}
}

func acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(sem chan struct{}) { <-sem }

// ChatLease grants exclusive use of the chat model until Release.
type ChatLease struct {
	Model ChatModel
	once  sync.Once
	m     *Manager
}

// Release gives the chat model back. It is safe to call more than once.
func (l *ChatLease) Release() {
	l.once.Do(func() {
		release(l.m.chatMu)
		release(l.m.backend)
	})
}

// AcquireChat waits for exclusive access to the chat model.
func (m *Manager) AcquireChat(ctx context.Context) (*ChatLease, error) {
	if err := m.state(); err != nil {
		return nil, err
	}
	if err := acquire(ctx, m.backend); err != nil {
		return nil, err
	}
	if err := acquire(ctx, m.chatMu); err != nil {
		release(m.backend)
		return nil, err
	}
	return &ChatLease{Model: m.chat, m: m}, nil
}

// Embed runs the embedding model on text while holding the backend and
// embedding locks. Without an embedding model it returns an empty vector.
func (m *Manager) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := m.state(); err != nil {
		return nil, err
	}
	if m.embedder == nil {
		return nil, nil
	}
	if err := acquire(ctx, m.backend); err != nil {
		return nil, err
	}
	defer release(m.backend)
	if err := acquire(ctx, m.embedMu); err != nil {
		return nil, err
	}
	defer release(m.embedMu)

	return m.embedder.Embed(ctx, text)
}

// Close closes any loaded model that holds resources.
func (m *Manager) Close() error {
	if m.state() != nil {
		return nil
	}
	closers := []any{m.chat}
	if any(m.embedder) != any(m.chat) {
		closers = append(closers, m.embedder)
	}
	var firstErr error
	for _, v := range closers {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ Embedder = (*Manager)(nil)
