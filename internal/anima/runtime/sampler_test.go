package runtime

import (
	"testing"
)

func TestSampler_Greedy(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0})
	if got := s.Sample([]float32{0.1, 3, -2, 2.9}); got != 1 {
		t.Errorf("greedy = %d, want 1", got)
	}
	if got := s.Sample(nil); got != -1 {
		t.Errorf("empty logits = %d, want -1", got)
	}
}

func TestSampler_TopKOne(t *testing.T) {
	cfg := NewSamplerConfig(0.7, 10)
	cfg.TopK = 1
	s := NewSampler(cfg)
	for range 20 {
		if got := s.Sample([]float32{1, 5, 4.9}); got != 1 {
			t.Fatalf("top-k 1 sampled %d", got)
		}
	}
}

func TestSampler_TopPCutsTail(t *testing.T) {
	cfg := SamplerConfig{Temperature: 0.7, TopP: 0.5, Seed: 7}
	s := NewSampler(cfg)
	// Token 0 alone holds well over half the mass.
	for range 50 {
		if got := s.Sample([]float32{10, 0, 0, 0}); got != 0 {
			t.Fatalf("top-p sampled tail token %d", got)
		}
	}
}

func TestSampler_RepetitionPenalty(t *testing.T) {
	cfg := SamplerConfig{Temperature: 0.7, TopK: 1, RepeatPenalty: 2, RepeatLastN: 4}
	s := NewSampler(cfg)
	logits := []float32{3, 2}
	if got := s.Sample(logits); got != 0 {
		t.Fatalf("before penalty = %d", got)
	}
	// 3/2 = 1.5 < 2, so token 1 wins once 0 is penalised.
	s.Accept(0)
	if got := s.Sample(logits); got != 1 {
		t.Errorf("after penalty = %d, want 1", got)
	}
	if logits[0] != 3 {
		t.Error("Sample modified its input")
	}

	// The window forgets old tokens.
	s.Accept(1, 1, 1, 1)
	if got := s.Sample(logits); got != 0 {
		t.Errorf("after window slide = %d, want 0", got)
	}
}

func TestSampler_SeedIsDeterministic(t *testing.T) {
	logits := []float32{1, 1.1, 0.9, 1.05, 0.95}
	draw := func() []Token {
		s := NewSampler(SamplerConfig{Temperature: 0.7, TopK: 5, TopP: 0.99, Seed: 42})
		out := make([]Token, 30)
		for i := range out {
			out[i] = s.Sample(logits)
		}
		return out
	}
	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestNewSamplerConfigDefaults(t *testing.T) {
	cfg := NewSamplerConfig(0.5, 256)
	if cfg.TopK != 40 || cfg.TopP != 0.92 || cfg.RepeatPenalty != 1.18 || cfg.RepeatLastN != 128 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxTokens != 256 || cfg.Temperature != 0.5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
