package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigZeroValuesAreKept(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantMargin  float64
		wantRetries int
	}{
		{
			name:        "unset falls back to defaults",
			yaml:        "server:\n  addr: \":9000\"\n",
			wantMargin:  15,
			wantRetries: 3,
		},
		{
			name:        "explicit zero",
			yaml:        "sync:\n  max_retries: 0\npricing:\n  default_margin: 0\n",
			wantMargin:  0,
			wantRetries: 0,
		},
		{
			name:        "explicit values",
			yaml:        "sync:\n  max_retries: 5\npricing:\n  default_margin: 7.5\n",
			wantMargin:  7.5,
			wantRetries: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Pricing.DefaultMargin == nil || *cfg.Pricing.DefaultMargin != tt.wantMargin {
				t.Errorf("default margin = %v, want %v", cfg.Pricing.DefaultMargin, tt.wantMargin)
			}
			if got := cfg.Sync.Retries(); got != tt.wantRetries {
				t.Errorf("retries = %d, want %d", got, tt.wantRetries)
			}
		})
	}
}
