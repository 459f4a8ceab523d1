// Package config loads the server's boot configuration: our own group
// identity, the frontend base URL, and the static peer list shared by the
// supergroup. The peer list is immutable after boot.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Peer is one federation member. Our own group appears in the list too;
// its Secret is the one we present when exchanging grants with peers.
type Peer struct {
	GroupNo int    `yaml:"group"`
	Secret  string `yaml:"secret"`
	BaseURL string `yaml:"base_url"`
	// Redirect overrides the default /fedapi/auth/redirect/<group>
	// convention for peers that registered a custom callback path.
	Redirect string `yaml:"redirect"`
}

type Config struct {
	GroupNo       int    `yaml:"group"`
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	ListenAddr    string `yaml:"listen_addr"`
	FrontendBase  string `yaml:"frontend_base"`
	Database      string `yaml:"database"`
	SessionSecret string `yaml:"session_secret"`
	TokenLength   int    `yaml:"token_length"`
	Peers         []Peer `yaml:"peers"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	applyEnv(&cfg)

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Database == "" {
		cfg.Database = "puzzlefed.db"
	}
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = 100
	}
	if cfg.Title == "" {
		cfg.Title = fmt.Sprintf("Group %d Puzzle Server", cfg.GroupNo)
	}
	if cfg.Description == "" {
		cfg.Description = "A federated sudoku puzzle platform."
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GROUP_NO"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GroupNo = n
		}
	}
	if v := os.Getenv("FRONTEND_BASE"); v != "" {
		cfg.FrontendBase = v
	}
	if v := os.Getenv("DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
}

func (cfg *Config) validate() error {
	if cfg.GroupNo < 10 || cfg.GroupNo > 19 {
		return fmt.Errorf("group must be in [10,19], got %d", cfg.GroupNo)
	}
	if cfg.FrontendBase == "" {
		return fmt.Errorf("frontend_base is required")
	}
	if cfg.SessionSecret == "" {
		return fmt.Errorf("session_secret is required")
	}

	seen := map[int]bool{}
	for _, p := range cfg.Peers {
		if p.GroupNo < 10 || p.GroupNo > 19 {
			return fmt.Errorf("peer group must be in [10,19], got %d", p.GroupNo)
		}
		if seen[p.GroupNo] {
			return fmt.Errorf("duplicate peer entry for group %d", p.GroupNo)
		}
		seen[p.GroupNo] = true
		if p.Secret == "" {
			return fmt.Errorf("peer %d has no shared secret", p.GroupNo)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("peer %d has no base url", p.GroupNo)
		}
	}

	if !seen[cfg.GroupNo] {
		return fmt.Errorf("peer list must include our own group %d", cfg.GroupNo)
	}

	return nil
}
