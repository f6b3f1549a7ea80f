package sleep

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Anima/internal/anima/store"
)

// Schema selects what a sleep cycle extracts and how it is applied.
type Schema string

const (
	// SchemaSplit extracts semantic and episodic facts and stores each as a
	// new memory.
	SchemaSplit Schema = "split"
	// SchemaCategorized rewrites the whole user profile as category/content
	// traits.
	SchemaCategorized Schema = "categorized"
)

// ParseSchema accepts "split" or "categorized", case-insensitively. An
// empty string selects SchemaSplit.
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemaSplit:
		return SchemaSplit, nil
	case SchemaCategorized:
		return SchemaCategorized, nil
	default:
		return "", fmt.Errorf("sleep: unknown schema %q (want split or categorized)", s)
	}
}

const splitSchemaJSON = `{
  "type": "object",
  "anyOf": [{"required": ["semantic"]}, {"required": ["episodic"]}],
  "properties": {
    "semantic": {"type": "array", "items": {"type": "string"}},
    "episodic": {"type": "array", "items": {"type": "string"}}
  }
}`

const categorizedSchemaJSON = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["category", "content"],
    "properties": {
      "category": {"type": "string", "minLength": 1},
      "content": {"type": "string", "minLength": 1}
    }
  }
}`

var (
	splitSchema       = jsonschema.MustCompileString("https://anima.local/schema/sleep-split.json", splitSchemaJSON)
	categorizedSchema = jsonschema.MustCompileString("https://anima.local/schema/sleep-categorized.json", categorizedSchemaJSON)
)

// Extraction is a validated consolidation reply.
type Extraction struct {
	Semantic []string
	Episodic []string
	Traits   []store.ProfileTrait
}

// Empty reports whether nothing usable was extracted.
func (e Extraction) Empty() bool {
	return len(e.Semantic) == 0 && len(e.Episodic) == 0 && len(e.Traits) == 0
}

// ParseReply cleans reply, parses it and checks it against the schema. Any
// failure wraps ErrParse.
func ParseReply(schema Schema, reply string) (Extraction, error) {
	cleaned := CleanJSON(reply)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	compiled := splitSchema
	if schema == SchemaCategorized {
		compiled = categorizedSchema
	}
	if err := compiled.Validate(doc); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var out Extraction
	switch schema {
	case SchemaCategorized:
		var traits []store.ProfileTrait
		if err := json.Unmarshal([]byte(cleaned), &traits); err != nil {
			return Extraction{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		for _, t := range traits {
			t.Category = strings.TrimSpace(t.Category)
			t.Content = strings.TrimSpace(t.Content)
			if t.Category == "" || t.Content == "" {
				continue
			}
			out.Traits = append(out.Traits, store.ProfileTrait{Category: t.Category, Content: t.Content})
		}
		if len(out.Traits) == 0 {
			return Extraction{}, fmt.Errorf("%w: no usable traits", ErrParse)
		}
	default:
		var split struct {
			Semantic []string `json:"semantic"`
			Episodic []string `json:"episodic"`
		}
		if err := json.Unmarshal([]byte(cleaned), &split); err != nil {
			return Extraction{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		out.Semantic = trimItems(split.Semantic)
		out.Episodic = trimItems(split.Episodic)
	}
	return out, nil
}

func trimItems(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
