package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FEED_URL", "https://example.com/festivals.csv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Geo.PositionCacheDuration)
	assert.Equal(t, 100, cfg.Geo.DistanceChunkSize)
	assert.Equal(t, 20, cfg.Listing.PageInitial)
	assert.Equal(t, 10, cfg.Listing.PageIncrement)
	assert.Equal(t, "chronological", cfg.Listing.OrderBy)
	assert.Equal(t, []string{"緯度", "経度", "お祭り名"}, cfg.Feed.RequiredFields)
	assert.Equal(t, []string{"大規模", "中規模", "小規模"}, cfg.Listing.ScaleOrder)
	assert.False(t, cfg.UseRedis())

	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone()
	assert.Equal(t, 9*3600, offset)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FEED_URL", "https://example.com/festivals.csv")
	t.Setenv("ORDER_BY", "distance")
	t.Setenv("PAGE_INITIAL", "30")
	t.Setenv("POSITION_CACHE_DURATION", "15m")
	t.Setenv("FEED_ALIASES", "写真URL1=写真URL, 詳細=簡単な説明")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "distance", cfg.Listing.OrderBy)
	assert.Equal(t, 30, cfg.Listing.PageInitial)
	assert.Equal(t, 15*time.Minute, cfg.Geo.PositionCacheDuration)
	assert.Equal(t, []string{"写真URL1=写真URL", "詳細=簡単な説明"}, cfg.Feed.Aliases)
	assert.True(t, cfg.UseRedis())
}

func TestValidate_AggregatesProblems(t *testing.T) {
	t.Setenv("FEED_URL", "")
	t.Setenv("ORDER_BY", "random")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("FEED_ALIASES", "broken")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "FEED_URL is required")
	assert.Contains(t, msg, "ORDER_BY")
	assert.Contains(t, msg, "LOG_FORMAT")
	assert.Contains(t, msg, "FEED_ALIASES")
}
