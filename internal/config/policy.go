package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy は審査ポリシーファイルの内容。
// 指定された項目だけがConfigの値を上書きする。
type Policy struct {
	Denylist        []string `yaml:"denylist"`
	TrustThreshold  int      `yaml:"trust_threshold"`
	DuplicateWindow string   `yaml:"duplicate_window"`
}

// LoadPolicy はYAML形式の審査ポリシーファイルを読み込む。
func LoadPolicy(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if p.DuplicateWindow != "" {
		if _, err := time.ParseDuration(p.DuplicateWindow); err != nil {
			return nil, fmt.Errorf("invalid duplicate_window %q: %w", p.DuplicateWindow, err)
		}
	}
	if p.TrustThreshold < 0 {
		return nil, fmt.Errorf("trust_threshold must not be negative: %d", p.TrustThreshold)
	}
	return &p, nil
}

// Apply はポリシーの値をcfgに反映する。
func (p *Policy) Apply(cfg *Config) {
	if len(p.Denylist) > 0 {
		cfg.Denylist = append([]string(nil), p.Denylist...)
	}
	if p.TrustThreshold > 0 {
		cfg.TrustThreshold = p.TrustThreshold
	}
	if p.DuplicateWindow != "" {
		// LoadPolicyで検証済み
		d, _ := time.ParseDuration(p.DuplicateWindow)
		if d > 0 {
			cfg.DuplicateWindow = d
		}
	}
}
