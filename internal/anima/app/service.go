// Package app assembles Anima's store, runtime, memory and generation
// pieces into one Service, the surface the CLI and the HTTP server call.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Anima/common/redact"
	"github.com/bdobrica/Anima/internal/anima/config"
	"github.com/bdobrica/Anima/internal/anima/generate"
	"github.com/bdobrica/Anima/internal/anima/memory"
	"github.com/bdobrica/Anima/internal/anima/memory/chromemindex"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/sleep"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// FallbackReply is returned when the model produced no text at all.
const FallbackReply = "I do not have a response yet."

var (
	// ErrEmptyMessage rejects a turn with nothing to answer.
	ErrEmptyMessage = errors.New("app: empty message")
	// ErrUnknownSetting is returned for configuration keys Anima does not
	// know.
	ErrUnknownSetting = errors.New("app: unknown setting")
)

// Service is Anima's caller-facing API.
type Service struct {
	cfg       Config
	store     *store.Store
	settings  *config.Settings
	runtime   *runtime.Manager
	engine    *generate.Engine
	retriever *memory.Retriever
	index     memory.Index
	sleeper   *sleep.Consolidator
	logger    *slog.Logger
	now       func() time.Time
}

type options struct {
	loader *runtime.Loader
	logger *slog.Logger
	now    func() time.Time
}

// Option customises New.
type Option func(*options)

// WithLoader replaces the loader built from the config, e.g. with scripted
// models in tests.
func WithLoader(l runtime.Loader) Option {
	return func(o *options) { o.loader = &l }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New opens the database and wires every component. Models are not loaded
// until Init.
func New(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	schema, err := sleep.ParseSchema(cfg.SleepSchema)
	if err != nil {
		return nil, err
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = memory.DefaultTopK
	}

	o.logger.Info("app: opening database", "path", cfg.DatabasePath)
	st, err := store.New(cfg.DatabasePath,
		store.WithLogger(o.logger),
		store.WithMinSimilarity(float32(cfg.MinSimilarity)),
		store.WithWriteTimeout(cfg.WriteTimeout),
		store.WithClock(o.now),
	)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	var index memory.Index = memory.StoreIndex{Store: st}
	if cfg.Index == IndexChromem {
		ci, err := chromemindex.Load(ctx, st, o.logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("app: build index: %w", err)
		}
		index = ci
	}

	loader := NewLoader(cfg, o.logger)
	if o.loader != nil {
		loader = *o.loader
	}
	rt := runtime.NewManager(loader, runtime.WithManagerLogger(o.logger))
	engine := generate.NewEngine(rt, generate.WithLogger(o.logger))

	s := &Service{
		cfg:      cfg,
		store:    st,
		settings: config.NewSettings(st),
		runtime:  rt,
		engine:   engine,
		retriever: memory.NewRetriever(st, rt,
			memory.WithIndex(index),
			memory.WithTopK(topK),
			memory.WithLogger(o.logger),
			memory.WithClock(o.now),
		),
		index: index,
		sleeper: sleep.New(st, engine, rt,
			sleep.WithSchema(schema),
			sleep.WithIndex(index),
			sleep.WithLogger(o.logger),
			sleep.WithClock(o.now),
		),
		logger: o.logger,
		now:    o.now,
	}
	return s, nil
}

// Init loads the models. A failure is sticky: later calls return it again.
func (s *Service) Init(ctx context.Context) error {
	return s.runtime.Init(ctx)
}

// Ready reports whether the models are loaded.
func (s *Service) Ready() bool { return s.runtime.Ready() }

// RuntimeErr returns why the models are not usable, or nil.
func (s *Service) RuntimeErr() error { return s.runtime.Err() }

// Config returns the configuration the service was built with.
func (s *Service) Config() Config { return s.cfg }

// Close releases the models and the database.
func (s *Service) Close() error {
	return errors.Join(s.runtime.Close(), s.store.Close())
}

// ChatRequest is one user turn.
type ChatRequest struct {
	// Message may be a tagged payload carrying recent history.
	Message string `json:"message"`
	// Temperature <= 0 uses the stored setting.
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

func (s *Service) textAttr(text string) string {
	if s.cfg.LogContent {
		return redact.Preview(text, 80)
	}
	return redact.Text(text)
}

// prepare stores the user turn, retrieves context and composes the prompt
// inputs. It fails fast when the models are not ready so nothing is stored
// for a turn that cannot be answered.
func (s *Service) prepare(ctx context.Context, req ChatRequest) (generate.Turn, float64, error) {
	if err := s.runtime.Err(); err != nil {
		return generate.Turn{}, 0, err
	}
	history, message := generate.ParsePayload(req.Message)
	if strings.TrimSpace(message) == "" {
		return generate.Turn{}, 0, ErrEmptyMessage
	}

	_, lines, err := s.retriever.Prepare(ctx, message)
	if err != nil {
		return generate.Turn{}, 0, err
	}
	persona, err := s.persona(ctx)
	if err != nil {
		return generate.Turn{}, 0, err
	}
	profile, err := s.store.ProfileTraits(ctx)
	if err != nil {
		return generate.Turn{}, 0, err
	}

	temperature := req.Temperature
	if temperature <= 0 {
		if temperature, err = s.settings.Temperature(ctx); err != nil {
			return generate.Turn{}, 0, err
		}
	}
	s.logger.Debug("app: turn prepared",
		"message", s.textAttr(message),
		"context_lines", len(lines),
		"has_history", history != "",
	)
	return generate.Turn{
		Persona: persona,
		Profile: profile,
		Context: lines,
		History: history,
		Message: message,
	}, temperature, nil
}

func (s *Service) persona(ctx context.Context) (generate.Persona, error) {
	name, err := s.settings.UserName(ctx)
	if err != nil {
		return generate.Persona{}, err
	}
	lang, err := s.settings.Language(ctx)
	if err != nil {
		return generate.Persona{}, err
	}
	extra, err := s.settings.CorePrompt(ctx)
	if err != nil {
		return generate.Persona{}, err
	}
	return generate.Persona{UserName: name, Language: lang, Extra: extra, Now: s.now()}, nil
}

// SendMessage answers one turn and stores the reply.
func (s *Service) SendMessage(ctx context.Context, req ChatRequest) (string, error) {
	turn, temperature, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	g := s.engine.Chat(ctx, turn, temperature, req.MaxTokens)
	defer g.Close()
	for g.Next() {
	}
	if err := g.Err(); err != nil {
		return "", err
	}
	reply := g.Result()
	if reply == "" {
		reply = FallbackReply
	}
	if _, err := s.SaveAssistantMessage(ctx, reply); err != nil {
		s.logger.Warn("app: store assistant reply", "err", err)
	}
	return reply, nil
}

// SendMessageStream starts answering one turn. The caller iterates the
// generation, closes it and stores the final text with
// SaveAssistantMessage.
func (s *Service) SendMessageStream(ctx context.Context, req ChatRequest) (*generate.Generation, error) {
	turn, temperature, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.engine.Chat(ctx, turn, temperature, req.MaxTokens), nil
}

// SaveAssistantMessage stores an assistant reply and remembers it as an
// episodic memory. The write is bounded by the store's write timeout; a
// failed embedding only skips the memory.
func (s *Service) SaveAssistantMessage(ctx context.Context, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyMessage
	}
	var id int64
	err := s.store.Bounded(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.store.InsertMessage(ctx, store.RoleAssistant, text)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("app: save assistant message: %w", err)
	}

	vec, err := s.runtime.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("app: embed assistant message", "err", err, "message_id", id)
		return id, nil
	}
	if len(vec) == 0 {
		return id, nil
	}
	if err := s.retriever.Remember(ctx, id, store.RoleAssistant, text, vec, store.Episodic); err != nil {
		s.logger.Warn("app: remember assistant message", "err", err, "message_id", id)
	}
	return id, nil
}

// ChatHistory returns the conversation turns, oldest first. Facts written by
// sleep cycles are not part of it.
func (s *Service) ChatHistory(ctx context.Context) ([]store.Message, error) {
	msgs, err := s.store.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if m.Role == store.RoleUser || m.Role == store.RoleAssistant {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) Memories(ctx context.Context) ([]store.Memory, error) {
	return s.store.ListMemories(ctx)
}

func (s *Service) SearchMemories(ctx context.Context, query string) ([]store.Memory, error) {
	return s.store.SearchMemories(ctx, query)
}

// DeleteMemory forgets one memory; its message stays in the history.
func (s *Service) DeleteMemory(ctx context.Context, messageID int64) error {
	return s.retriever.Forget(ctx, messageID)
}

func (s *Service) CorePrompt(ctx context.Context) (string, error) {
	return s.settings.CorePrompt(ctx)
}

func (s *Service) SetCorePrompt(ctx context.Context, prompt string) error {
	return s.settings.SetCorePrompt(ctx, prompt)
}

func (s *Service) UserName(ctx context.Context) (string, error) {
	return s.settings.UserName(ctx)
}

func (s *Service) SetUserName(ctx context.Context, name string) error {
	return s.settings.SetUserName(ctx, strings.TrimSpace(name))
}

func (s *Service) Language(ctx context.Context) (string, error) {
	return s.settings.Language(ctx)
}

func (s *Service) SetLanguage(ctx context.Context, lang string) error {
	return s.settings.SetLanguage(ctx, strings.TrimSpace(lang))
}

func (s *Service) Temperature(ctx context.Context) (float64, error) {
	return s.settings.Temperature(ctx)
}

func (s *Service) SetTemperature(ctx context.Context, t float64) error {
	return s.settings.SetTemperature(ctx, t)
}

// Setting reads a known setting by key, with defaults applied.
func (s *Service) Setting(ctx context.Context, key string) (string, error) {
	switch key {
	case config.KeyCorePrompt:
		return s.CorePrompt(ctx)
	case config.KeyUserName:
		return s.UserName(ctx)
	case config.KeyLanguage:
		return s.Language(ctx)
	case config.KeyTemperature:
		t, err := s.Temperature(ctx)
		if err != nil {
			return "", err
		}
		return config.FormatTemperature(t), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
}

// SetSetting writes a known setting by key.
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	switch key {
	case config.KeyCorePrompt:
		return s.SetCorePrompt(ctx, value)
	case config.KeyUserName:
		return s.SetUserName(ctx, value)
	case config.KeyLanguage:
		return s.SetLanguage(ctx, value)
	case config.KeyTemperature:
		t, ok := config.ParseTemperature(value)
		if !ok {
			return fmt.Errorf("app: temperature %q is not a number", value)
		}
		return s.SetTemperature(ctx, t)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
}

func (s *Service) ProfileTraits(ctx context.Context) ([]store.ProfileTrait, error) {
	return s.store.ProfileTraits(ctx)
}

func (s *Service) AddProfileTrait(ctx context.Context, category, content string) error {
	return s.store.AddProfileTrait(ctx, category, content)
}

func (s *Service) ClearProfile(ctx context.Context) error {
	return s.store.ClearProfile(ctx)
}

// RunSleepCycle consolidates raw memories now.
func (s *Service) RunSleepCycle(ctx context.Context) (sleep.Result, error) {
	if err := s.runtime.Err(); err != nil {
		return sleep.Result{}, err
	}
	return s.sleeper.Run(ctx)
}

// ExportDatabase writes a full copy of the database to dest.
func (s *Service) ExportDatabase(ctx context.Context, dest string) (bool, error) {
	return s.store.Export(ctx, dest)
}

// FactoryReset erases everything: history, memories, profile and settings.
func (s *Service) FactoryReset(ctx context.Context) error {
	if err := s.store.FactoryReset(ctx); err != nil {
		return err
	}
	return s.index.Clear(ctx)
}

// ProactiveGreeting writes an opening line. An empty timeOfDay is derived
// from the clock.
func (s *Service) ProactiveGreeting(ctx context.Context, timeOfDay string) (string, error) {
	if err := s.runtime.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(timeOfDay) == "" {
		timeOfDay = generate.TimeOfDay(s.now())
	}
	persona, err := s.persona(ctx)
	if err != nil {
		return "", err
	}
	profile, err := s.store.ProfileTraits(ctx)
	if err != nil {
		return "", err
	}
	temperature, err := s.settings.Temperature(ctx)
	if err != nil {
		return "", err
	}
	return s.engine.Greeting(ctx, generate.GreetingInput{
		Persona:     persona,
		Profile:     profile,
		TimeOfDay:   timeOfDay,
		Temperature: temperature,
	})
}

// BrainExport is the JSON document ExportBrain produces.
type BrainExport struct {
	UserName    string           `json:"user_name"`
	AppLanguage string           `json:"app_language"`
	Temperature float64          `json:"temperature"`
	UserProfile []ExportedTrait  `json:"user_profile"`
	Memories    []ExportedMemory `json:"memories"`
	ExportedAt  int64            `json:"exported_at"`
}

type ExportedTrait struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

type ExportedMemory struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportBrain renders settings, profile and memories as indented JSON.
func (s *Service) ExportBrain(ctx context.Context) ([]byte, error) {
	name, err := s.settings.UserName(ctx)
	if err != nil {
		return nil, err
	}
	lang, err := s.settings.Language(ctx)
	if err != nil {
		return nil, err
	}
	temp, err := s.settings.Temperature(ctx)
	if err != nil {
		return nil, err
	}
	traits, err := s.store.ProfileTraits(ctx)
	if err != nil {
		return nil, err
	}
	mems, err := s.store.ListMemories(ctx)
	if err != nil {
		return nil, err
	}

	doc := BrainExport{
		UserName:    name,
		AppLanguage: lang,
		Temperature: temp,
		UserProfile: make([]ExportedTrait, 0, len(traits)),
		Memories:    make([]ExportedMemory, 0, len(mems)),
		ExportedAt:  s.now().Unix(),
	}
	for _, t := range traits {
		doc.UserProfile = append(doc.UserProfile, ExportedTrait{Category: t.Category, Content: t.Content})
	}
	for _, m := range mems {
		doc.Memories = append(doc.Memories, ExportedMemory{ID: m.MessageID, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("app: export brain: %w", err)
	}
	return out, nil
}
