package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/ZentaChain/zentalk-oscar/pkg/im"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, im.PolicyAllowAll, policy)

	cp, err := cfg.CodepageSet()
	require.NoError(t, err)
	assert.Equal(t, charmap.Windows1252, cp.Legacy)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oscar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
owner: "123456"
log:
  level: debug
  development: true
codepages:
  legacy: windows-1251
rendezvous:
  policy: buddies-only
roster:
  path: /tmp/roster.db
inspect:
  listen: "127.0.0.1:9000"
  cors: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123456", cfg.Owner)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "iso-8859-1", cfg.Codepages.Plain, "unset keys keep their default")
	assert.Equal(t, "windows-1251", cfg.Codepages.Legacy)
	assert.Equal(t, "/tmp/roster.db", cfg.Roster.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.Inspect.Listen)
	assert.False(t, cfg.Inspect.EnableCORS)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, im.PolicyBuddiesOnly, policy)

	cp, err := cfg.CodepageSet()
	require.NoError(t, err)
	assert.Equal(t, charmap.Windows1251, cp.Legacy)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: blue\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad codepage", "codepages:\n  plain: klingon\n"},
		{"bad policy", "rendezvous:\n  policy: everyone\n"},
		{"padded owner", "owner: \" 123\"\n"},
		{"not yaml", "owner: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
