package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/datastore"
	"github.com/keshon/botcore/internal/logger"
)

func openStorage(t *testing.T, path string) *Storage {
	t.Helper()
	ds, err := datastore.Open(datastore.Config{
		FilePath: path,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	return NewWithStore(ds)
}

func TestBanList(t *testing.T) {
	s := openStorage(t, filepath.Join(t.TempDir(), "store.json"))
	defer s.Close()

	added, err := s.Ban("42")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Ban("42")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = s.Ban("7")
	require.NoError(t, err)

	bans, err := s.Banned()
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "7"}, bans)

	removed, err := s.Unban("42")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Unban("42")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFeaturesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := openStorage(t, path)

	features, err := s.Features()
	require.NoError(t, err)
	assert.Empty(t, features)

	require.NoError(t, s.SetFeature("echo", false))
	require.NoError(t, s.SetFeature("math", true))
	require.NoError(t, s.Close())

	again := openStorage(t, path)
	defer again.Close()
	features, err = again.Features()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"echo": false, "math": true}, features)
}

func TestCommandHistoryIsCapped(t *testing.T) {
	s := openStorage(t, filepath.Join(t.TempDir(), "store.json"))
	defer s.Close()

	for i := 0; i < commandHistoryLimit+5; i++ {
		require.NoError(t, s.AppendCommandToHistory("g1", CommandHistoryRecord{
			GroupID:  "g1",
			Command:  fmt.Sprintf("cmd%d", i),
			Datetime: time.Now(),
		}))
	}

	history, err := s.FetchCommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, history, commandHistoryLimit)
	assert.Equal(t, "cmd5", history[0].Command)
	assert.Equal(t, fmt.Sprintf("cmd%d", commandHistoryLimit+4), history[len(history)-1].Command)

	other, err := s.FetchCommandHistory("g2")
	require.NoError(t, err)
	assert.Empty(t, other)

	assert.Error(t, s.AppendCommandToHistory("", CommandHistoryRecord{}))
}

func TestHistoryAppendsWhileFlushing(t *testing.T) {
	s := openStorage(t, filepath.Join(t.TempDir(), "store.json"))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			group := fmt.Sprintf("g%d", i%50)
			assert.NoError(t, s.AppendCommandToHistory(group, CommandHistoryRecord{GroupID: group, Command: "help"}))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Flush())
		}()
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		history, err := s.FetchCommandHistory(fmt.Sprintf("g%d", i))
		require.NoError(t, err)
		assert.Len(t, history, 4)
	}
}
