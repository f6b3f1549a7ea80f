package fastembed

// DefaultModel is fastembed's bge-small-en-v1.5.
const DefaultModel = "fast-bge-small-en-v1.5"

// Config selects the model and its cache.
type Config struct {
	Model     string
	CacheDir  string
	MaxLength int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.CacheDir == "" {
		c.CacheDir = ".fastembed"
	}
	return c
}
