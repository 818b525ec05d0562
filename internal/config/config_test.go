package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("SEND_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "datastore.json", cfg.StoragePath)
	assert.Equal(t, 800*time.Millisecond, cfg.SendInterval)
	assert.Equal(t, "/", cfg.CommandPrefix)
	assert.Equal(t, 50, cfg.HistoryPerGroup)
}

func TestLoadLists(t *testing.T) {
	t.Setenv("ADMIN_USER_IDS", "1,2,3")
	t.Setenv("FEATURES_DISABLED", "echo")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.AdminUserIDs)
	assert.Equal(t, []string{"echo"}, cfg.FeaturesDisabled)
}

func TestNewRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := New()
	require.Error(t, err)

	t.Setenv("DISCORD_TOKEN", "abc")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.DiscordToken)
}

func TestLoadRejectsBadProbability(t *testing.T) {
	t.Setenv("ECHO_PROBABILITY", "1.5")
	_, err := Load()
	require.Error(t, err)
}
