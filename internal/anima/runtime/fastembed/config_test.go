package fastembed

import "testing"

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.Model != DefaultModel || c.CacheDir != ".fastembed" {
		t.Errorf("defaults = %+v", c)
	}
	c = Config{Model: "fast-all-MiniLM-L6-v2", CacheDir: "/tmp/m"}.withDefaults()
	if c.Model != "fast-all-MiniLM-L6-v2" || c.CacheDir != "/tmp/m" {
		t.Errorf("overrides lost: %+v", c)
	}
}
