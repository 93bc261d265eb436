package database

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func redisConfigFor(t *testing.T, addr string) config.RedisConfig {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: port}
}

func TestInitRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("reachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := InitRedis(ctx, redisConfigFor(t, mr.Addr()), zap.NewNop())
		require.NotNil(t, rdb)
		defer rdb.Close()

		require.NoError(t, rdb.Set(ctx, "k", "v", 0).Err())
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("unreachable server yields nil", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := redisConfigFor(t, mr.Addr())
		mr.Close()

		assert.Nil(t, InitRedis(ctx, cfg, zap.NewNop()))
	})
}
