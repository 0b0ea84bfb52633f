// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers TOML and YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalTOML = `
[matrix]
homeserver = "https://matrix.example.org"
username = "replybot"
password = "hunter2"
`

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "replybot.toml", `
[matrix]
homeserver = "https://matrix.example.org"
username = "replybot"
password = "hunter2"
display_name = "Replybot"
allowed_rooms = ["!a:example.org", "!b:example.org"]
allowed_users = ["@alice:example.org"]
reply_in_dms = true

[llm]
provider = "openai"
model = "gpt-4o-mini"
base_url = "http://localhost:11434/v1"
system_prompt = "be brief"
supports_images = false
timeout = "30s"

[llm.settings]
temperature = 0.5
max_tokens = 512

[limits]
max_messages = 10
max_text = 2000
max_images = 2
max_nodes = 50
chunk_size = 1000
edit_delay = "500ms"
sweep_quiet = "2m"

[idle]
enabled = true
interval = "1h"
messages = ["hello?"]

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "Replybot", cfg.Matrix.DisplayName)
	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, cfg.Matrix.AllowedRooms)
	assert.Equal(t, []string{"@alice:example.org"}, cfg.Matrix.AllowedUsers)
	assert.True(t, cfg.Matrix.ReplyInDMs)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	require.NotNil(t, cfg.LLM.SupportsImages)
	assert.False(t, *cfg.LLM.SupportsImages)
	assert.Nil(t, cfg.LLM.SupportsNames)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.5, cfg.LLM.Settings["temperature"], 1e-9)
	assert.EqualValues(t, 512, cfg.LLM.Settings["max_tokens"])

	assert.Equal(t, LimitsConfig{
		MaxMessages:   10,
		MaxText:       2000,
		MaxImages:     2,
		MaxNodes:      50,
		ChunkSize:     1000,
		EditDelay:     500 * time.Millisecond,
		SweepQuiet:    2 * time.Minute,
		EditDelayRaw:  "500ms",
		SweepQuietRaw: "2m",
	}, cfg.Limits)

	assert.True(t, cfg.Idle.Enabled)
	assert.Equal(t, time.Hour, cfg.Idle.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "replybot.yaml", `
matrix:
  homeserver: "https://matrix.example.org"
  username: "replybot"
  password: "hunter2"
llm:
  provider: gemini
  model: gemini-2.0-flash
  api_key: "key"
limits:
  max_messages: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Limits.MaxMessages)
	assert.Equal(t, DefaultMaxNodes, cfg.Limits.MaxNodes)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "replybot.toml", minimalTOML))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultLLMTimeout, cfg.LLM.Timeout)
	assert.Equal(t, DefaultMaxMessages, cfg.Limits.MaxMessages)
	assert.Equal(t, DefaultMaxText, cfg.Limits.MaxText)
	assert.Equal(t, DefaultMaxImages, cfg.Limits.MaxImages)
	assert.Equal(t, DefaultMaxNodes, cfg.Limits.MaxNodes)
	assert.Equal(t, DefaultChunkSize, cfg.Limits.ChunkSize)
	assert.Equal(t, DefaultEditDelay, cfg.Limits.EditDelay)
	assert.Equal(t, DefaultSweepQuiet, cfg.Limits.SweepQuiet)
	assert.Equal(t, DefaultIdle, cfg.Idle.Interval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_ZeroEditDelay(t *testing.T) {
	cfg, err := Load(writeConfig(t, "replybot.toml", minimalTOML+`
[limits]
edit_delay = "0s"
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Limits.EditDelay)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_REPLYBOT_PASSWORD", "from-env")
	t.Setenv("TEST_REPLYBOT_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "replybot.toml", `
[matrix]
homeserver = "https://matrix.example.org"
username = "replybot"
password = "${TEST_REPLYBOT_PASSWORD}"

[llm]
api_key = "${TEST_REPLYBOT_KEY}"
system_prompt = "${TEST_REPLYBOT_UNSET}"
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Matrix.Password)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Empty(t, cfg.LLM.SystemPrompt)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"missing file", "", "", "reading config file"},
		{"bad toml", "c.toml", "[matrix\n", "parsing config file"},
		{"bad yaml", "c.yaml", "matrix: [", "parsing config file"},
		{"bad duration", "c.toml", minimalTOML + "[limits]\nedit_delay = \"soon\"\n", "limits.edit_delay"},
		{"missing homeserver", "c.toml", "[matrix]\nusername = \"a\"\npassword = \"b\"\n", "matrix.homeserver is required"},
		{"bad provider", "c.toml", minimalTOML + "[llm]\nprovider = \"palm\"\n", "llm.provider"},
		{"gemini without key", "c.toml", minimalTOML + "[llm]\nprovider = \"gemini\"\n", "llm.api_key"},
		{"negative idle interval", "c.toml", minimalTOML + "[idle]\nenabled = true\ninterval = \"-1m\"\n", "idle.interval"},
		{"bad log level", "c.toml", minimalTOML + "[logging]\nlevel = \"loud\"\n", "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.toml")
			if tt.file != "" {
				path = writeConfig(t, tt.file, tt.content)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{Matrix: MatrixConfig{
			Homeserver: "https://matrix.example.org",
			Username:   "replybot",
			Password:   "pw",
		}}
		c.ApplyDefaults()
		return c
	}

	require.NoError(t, valid().Validate())

	c := valid()
	c.Matrix.Homeserver = "matrix.example.org"
	assert.ErrorContains(t, c.Validate(), "http or https")

	c = valid()
	c.Matrix.Password = ""
	assert.ErrorContains(t, c.Validate(), "matrix.password is required")

	c = valid()
	c.Limits.MaxImages = -1
	assert.ErrorContains(t, c.Validate(), "limits.max_images")

	c = valid()
	c.Limits.ChunkSize = -5
	assert.ErrorContains(t, c.Validate(), "limits.chunk_size")
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("COVEN_REPLYBOT_CONFIG", "/etc/replybot.yaml")
	assert.Equal(t, "/etc/replybot.yaml", DefaultPath())

	t.Setenv("COVEN_REPLYBOT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "coven", "replybot.toml"), DefaultPath())
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "coven"), DataDir())
}
