package chessbuilder

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/ascii-chess/internal/config"
	"github.com/park285/ascii-chess/internal/service/cache"
	svcchess "github.com/park285/ascii-chess/internal/service/chess"
)

func TestParseRedisURL(t *testing.T) {
	cases := []struct {
		raw  string
		want cache.CacheConfig
	}{
		{"redis://localhost", cache.CacheConfig{Host: "localhost", Port: 6379, Prefix: cachePrefix}},
		{"redis://:secret@cache:6380/2", cache.CacheConfig{Host: "cache", Port: 6380, Password: "secret", DB: 2, Prefix: cachePrefix}},
		{"rediss://cache.example.com", cache.CacheConfig{Host: "cache.example.com", Port: 6379, TLS: true, Prefix: cachePrefix}},
		{"unix:///run/redis.sock?db=3", cache.CacheConfig{Network: "unix", Host: "/run/redis.sock", DB: 3, Prefix: cachePrefix}},
	}
	for _, tc := range cases {
		got, err := parseRedisURL(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, *got, tc.raw)
	}

	for _, bad := range []string{"http://cache", "redis://cache:port", "redis://cache/x", "unix://"} {
		_, err := parseRedisURL(bad)
		assert.Error(t, err, bad)
	}
}

func offlineConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.ExportDir = t.TempDir()
	cfg.PlayerName = "tester"
	cfg.AsciiOnly = true
	return cfg
}

func TestNewOfflineUsesMemoryFallbacks(t *testing.T) {
	deps, err := New(context.Background(), offlineConfig(t), Options{Offline: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	assert.Nil(t, deps.Engine)
	assert.Nil(t, deps.DB)
	assert.Nil(t, deps.Spectator)
	assert.IsType(t, &cache.MemoryCache{}, deps.Cache)
	assert.Equal(t, 1350, deps.Strength.Min)

	games, err := deps.Service.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, games)

	_, err = deps.Service.Start(context.Background())
	assert.True(t, errors.Is(err, svcchess.ErrEngineUnavailable), "got %v", err)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := offlineConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	deps, err := New(context.Background(), cfg, Options{Offline: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.CacheService{}, deps.Cache)
	require.NoError(t, deps.Close())
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := offlineConfig(t)
	cfg.RedisURL = "redis://" + addr
	_, err := New(context.Background(), cfg, Options{Offline: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init cache")
}

func TestNewRequiresEngine(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.StockfishPath = t.TempDir()
	cfg.AutoInstall = false
	_, err := New(context.Background(), cfg, Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locate engine")
}

func TestCloseNilDeps(t *testing.T) {
	var deps *Deps
	assert.NoError(t, deps.Close())
	assert.NoError(t, (&Deps{}).Close())
}
