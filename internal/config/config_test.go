// ABOUTME: Tests for configuration loading, env expansion, and validation
// ABOUTME: Covers defaults, duration parsing, and rejection of invalid values

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/node.db", cfg.Database.Path)
	assert.Equal(t, "/tmp/node_key.pem", cfg.Node.KeyPath)

	// Defaults
	assert.Equal(t, "help", cfg.Agents.HelpBoard)
	assert.Equal(t, 15, cfg.Agents.ContextPosts)
	assert.Equal(t, 500, cfg.Agents.MaxTokens)
	assert.Equal(t, "memory", cfg.Agents.CooldownBackend)
	assert.Equal(t, "anthropic", cfg.Providers.Default)
	assert.Equal(t, 40*time.Second, cfg.Agents.ReplyCooldown)
	assert.Equal(t, 20*time.Second, cfg.Agents.SummonCooldown)
	assert.Equal(t, 20*time.Second, cfg.Agents.BountyCooldown)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, time.Sunday, cfg.ReportDay())
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_COEVO_KEY", "sk-test-123")

	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
providers:
  anthropic:
    api_key: "${TEST_COEVO_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Providers.Anthropic.APIKey)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
agents:
  reply_cooldown: "90s"
  summon_cooldown: "5s"
scheduler:
  interval: "1h"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Agents.ReplyCooldown)
	assert.Equal(t, 5*time.Second, cfg.Agents.SummonCooldown)
	// Unset falls back to default
	assert.Equal(t, 20*time.Second, cfg.Agents.BountyCooldown)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
agents:
  reply_cooldown: "forty seconds"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "reply_cooldown")
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	path := writeConfig(t, `
node:
  key_path: "/tmp/node_key.pem"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "database.path")
}

func TestLoad_MissingKeyPath(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "node.key_path")
}

func TestLoad_AgentsEnabledRequiresPersonas(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
agents:
  enabled: true
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "persona_path")
}

func TestLoad_RedisBackendRequiresAddr(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
agents:
  cooldown_backend: "redis"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "redis_addr")
}

func TestLoad_UnknownCooldownBackend(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
agents:
  cooldown_backend: "memcached"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "cooldown_backend")
}

func TestLoad_BadWeekday(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/node.db"
node:
  key_path: "/tmp/node_key.pem"
scheduler:
  report_weekday: "Caturday"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "report_weekday")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}
