package runtime

import (
	"math"
	"math/rand/v2"
	"slices"
)

// Sampler draws tokens from logits. With a positive temperature it applies,
// in order: repetition penalty over the recent window, top-k, top-p,
// temperature scaling and a seeded categorical draw. Otherwise it picks the
// highest logit.
type Sampler struct {
	cfg     SamplerConfig
	rng     *rand.Rand
	history []Token
}

// NewSampler returns a sampler for cfg.
func NewSampler(cfg SamplerConfig) *Sampler {
	return &Sampler{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Greedy reports whether the sampler ignores randomness.
func (s *Sampler) Greedy() bool { return s.cfg.Temperature <= 0 }

// Accept records tokens for the repetition penalty.
func (s *Sampler) Accept(tokens ...Token) {
	s.history = append(s.history, tokens...)
	if n := s.cfg.RepeatLastN; n > 0 && len(s.history) > n {
		s.history = slices.Clone(s.history[len(s.history)-n:])
	}
}

type candidate struct {
	tok   Token
	logit float64
	p     float64
}

// Sample picks the next token. logits is indexed by token id and is not
// modified. It returns -1 for an empty slice.
func (s *Sampler) Sample(logits []float32) Token {
	if len(logits) == 0 {
		return -1
	}
	if s.Greedy() {
		return argmax(logits)
	}

	cands := make([]candidate, len(logits))
	for i, l := range logits {
		cands[i] = candidate{tok: Token(i), logit: float64(l)}
	}
	s.penalize(cands)

	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.logit > b.logit:
			return -1
		case a.logit < b.logit:
			return 1
		}
		return 0
	})
	if k := s.cfg.TopK; k > 0 && k < len(cands) {
		cands = cands[:k]
	}
	if p := s.cfg.TopP; p > 0 && p < 1 {
		softmax(cands, 1)
		cum := 0.0
		for i := range cands {
			cum += cands[i].p
			if cum >= p {
				cands = cands[:i+1]
				break
			}
		}
	}
	softmax(cands, s.cfg.Temperature)

	r := s.rng.Float64()
	cum := 0.0
	for _, c := range cands {
		cum += c.p
		if r < cum {
			return c.tok
		}
	}
	return cands[len(cands)-1].tok
}

// penalize scales down the logits of recently seen tokens: positive logits
// are divided by the penalty, negative ones multiplied.
func (s *Sampler) penalize(cands []candidate) {
	pen := s.cfg.RepeatPenalty
	if pen <= 0 || pen == 1 || len(s.history) == 0 {
		return
	}
	seen := make(map[Token]struct{}, len(s.history))
	for _, t := range s.history {
		seen[t] = struct{}{}
	}
	for i := range cands {
		if _, ok := seen[cands[i].tok]; !ok {
			continue
		}
		if cands[i].logit > 0 {
			cands[i].logit /= pen
		} else {
			cands[i].logit *= pen
		}
	}
}

// softmax fills p from logit/temp. cands must be sorted by logit, highest
// first.
func softmax(cands []candidate, temp float64) {
	if len(cands) == 0 {
		return
	}
	maxL := cands[0].logit / temp
	sum := 0.0
	for i := range cands {
		cands[i].p = math.Exp(cands[i].logit/temp - maxL)
		sum += cands[i].p
	}
	for i := range cands {
		cands[i].p /= sum
	}
}

func argmax(logits []float32) Token {
	best := 0
	for i, l := range logits {
		if l > logits[best] {
			best = i
		}
	}
	return Token(best)
}
