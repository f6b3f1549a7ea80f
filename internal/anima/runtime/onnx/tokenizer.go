package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// BERT special token ids.
const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// Tokenizer is a lower-casing WordPiece tokenizer over a tokenizer.json
// vocabulary.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the "model.vocab" map from a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read tokenizer: %w", err)
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("onnx: parse tokenizer: %w", err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("onnx: tokenizer %s has an empty vocabulary", path)
	}
	return NewTokenizer(doc.Model.Vocab), nil
}

// NewTokenizer wraps an in-memory vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Tokenize splits text on whitespace and punctuation, then greedily matches
// the longest vocabulary prefix of each word, continuing with "##" pieces.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var out []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, t.wordPiece(word)...)
	}
	return out
}

func splitWords(text string) []string {
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	var out []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := false
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				out = append(out, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			// BERT maps a word with any unknown piece to a single [UNK].
			return []int64{unkToken}
		}
		start = end
	}
	return out
}

// Encode frames tokens with [CLS]/[SEP] and pads to maxLen, returning input
// ids, the attention mask and token type ids.
func Encode(tokens []int64, maxLen int) (ids, mask, types []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	types = make([]int64, maxLen)
	if maxLen < 2 {
		return ids, mask, types
	}
	n := min(len(tokens), maxLen-2)
	ids[0], mask[0] = clsToken, 1
	for i := range n {
		ids[i+1] = tokens[i]
		mask[i+1] = 1
	}
	ids[n+1], mask[n+1] = sepToken, 1
	return ids, mask, types
}
