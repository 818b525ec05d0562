package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botcore/internal/logger"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		FilePath: filepath.Join(t.TempDir(), "data", "store.json"),
		Backups:  2,
		Logger:   logger.Discard(),
	}
}

func TestOpenCreatesFile(t *testing.T) {
	cfg := testConfig(t)
	ds, err := Open(cfg)
	require.NoError(t, err)
	defer ds.Close()

	raw, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(raw))
}

func TestPersistAndReload(t *testing.T) {
	cfg := testConfig(t)
	ds, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, ds.Set("bans", []string{"1", "2"}))
	require.NoError(t, ds.Set("features", map[string]bool{"echo": false}))
	require.NoError(t, ds.Close())

	again, err := Open(cfg)
	require.NoError(t, err)
	defer again.Close()

	var bans []string
	ok, err := again.Get("bans", &bans)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, bans)

	var features map[string]bool
	ok, err = again.Get("features", &features)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"echo": false}, features)
}

func TestGetMissingKey(t *testing.T) {
	ds, err := Open(testConfig(t))
	require.NoError(t, err)
	defer ds.Close()

	var v map[string]bool
	ok, err := ds.Get("nope", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetStoresACopy(t *testing.T) {
	ds, err := Open(testConfig(t))
	require.NoError(t, err)
	defer ds.Close()

	list := []string{"a"}
	require.NoError(t, ds.Set("k", list))
	list[0] = "changed"

	var got []string
	_, err = ds.Get("k", &got)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	ds, err := Open(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())

	assert.ErrorIs(t, ds.Set("k", "v"), ErrClosed)
	_, err = ds.Get("k", new(string))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ds.Flush(), ErrClosed)
}

func TestSizeLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSize = 10
	ds, err := Open(cfg)
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.Set("small", "ok"))
	assert.ErrorIs(t, ds.Set("big", "this value is far too large"), ErrFull)
	assert.Equal(t, len(`"ok"`), ds.Size())

	ok, err := ds.Get("big", new(string))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackupsAreCapped(t *testing.T) {
	cfg := testConfig(t)
	ds, err := Open(cfg)
	require.NoError(t, err)
	defer ds.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, ds.Set("n", i))
		require.NoError(t, ds.Flush())
	}

	matches, err := filepath.Glob(cfg.FilePath + ".*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{cfg.FilePath + ".1", cfg.FilePath + ".2"}, matches)

	raw, err := os.ReadFile(cfg.FilePath + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"n": 2`)
}

func TestConcurrentSetAndFlush(t *testing.T) {
	ds, err := Open(testConfig(t))
	require.NoError(t, err)
	defer ds.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, ds.Set(fmt.Sprintf("k%d", i), []int{i}))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, ds.Flush())
		}()
	}
	wg.Wait()
	require.NoError(t, ds.Flush())

	var got []int
	ok, err := ds.Get("k49", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{49}, got)
}
