package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadRedisConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()

		cfg := LoadRedisConfig()
		assert.Equal(t, "localhost:6379", cfg.Addr())
		assert.Equal(t, 0, cfg.DB)
		assert.Equal(t, 2*time.Second, cfg.PingTimeout)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()

		viper.Set("redis.host", "cache.internal")
		viper.Set("redis.port", "6380")
		viper.Set("redis.db", 3)

		cfg := LoadRedisConfig()
		assert.Equal(t, "cache.internal:6380", cfg.Addr())
		assert.Equal(t, 3, cfg.DB)
	})
}
