package onnx

// Config locates the model files.
type Config struct {
	ModelPath     string
	TokenizerPath string
	// LibraryPath points at libonnxruntime; empty uses the loader default.
	LibraryPath string
	// Dimensions defaults to 384 (all-MiniLM-L6-v2).
	Dimensions int
	// MaxLength is the padded sequence length, default 128.
	MaxLength int
}

func (c Config) withDefaults() Config {
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxLength <= 2 {
		c.MaxLength = 128
	}
	return c
}
