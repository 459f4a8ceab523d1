package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `group: 19
frontend_base: https://puzzles.test
session_secret: shh
peers:
  - group: 19
    secret: own-secret
    base_url: https://self.test
  - group: 11
    secret: peer11-secret
    base_url: https://peer11.test
    redirect: custom/oauth
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 19, cfg.GroupNo)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "puzzlefed.db", cfg.Database)
	assert.Equal(t, 100, cfg.TokenLength)
	assert.Equal(t, "Group 19 Puzzle Server", cfg.Title)
	require.Len(t, cfg.Peers, 2)
	assert.Equal(t, "custom/oauth", cfg.Peers[1].Redirect)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GROUP_NO", "11")
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_SECRET", "from-env")

	body := `group: 19
frontend_base: https://puzzles.test
session_secret: shh
peers:
  - group: 19
    secret: own-secret
    base_url: https://self.test
  - group: 11
    secret: peer11-secret
    base_url: https://peer11.test
`

	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 11, cfg.GroupNo)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "from-env", cfg.SessionSecret)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "group out of range",
			body: "group: 5\nfrontend_base: https://f\nsession_secret: s\npeers:\n  - {group: 5, secret: x, base_url: https://u}\n",
		},
		{
			name: "missing frontend_base",
			body: "group: 19\nsession_secret: s\npeers:\n  - {group: 19, secret: x, base_url: https://u}\n",
		},
		{
			name: "missing session_secret",
			body: "group: 19\nfrontend_base: https://f\npeers:\n  - {group: 19, secret: x, base_url: https://u}\n",
		},
		{
			name: "duplicate peer",
			body: "group: 19\nfrontend_base: https://f\nsession_secret: s\npeers:\n  - {group: 19, secret: x, base_url: https://u}\n  - {group: 19, secret: y, base_url: https://v}\n",
		},
		{
			name: "peer without secret",
			body: "group: 19\nfrontend_base: https://f\nsession_secret: s\npeers:\n  - {group: 19, secret: x, base_url: https://u}\n  - {group: 11, base_url: https://v}\n",
		},
		{
			name: "own group not in peer list",
			body: "group: 19\nfrontend_base: https://f\nsession_secret: s\npeers:\n  - {group: 11, secret: x, base_url: https://u}\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
