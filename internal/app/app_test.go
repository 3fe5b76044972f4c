package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkarlsen/newsdex/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Crawler: config.CrawlerConfig{
			SeedURLs:   []string{"https://news.example/front"},
			Workers:    2,
			MaxRetries: 1,
			UserAgent:  "newsdex-test/1.0",
		},
		Politeness: config.PolitenessConfig{MinDelaySeconds: 0, MaxConcurrentPerHost: 2},
		Backoff:    config.BackoffConfig{InitialMs: 100, MaxMs: 1000},
		Frontier:   config.FrontierConfig{Provider: "memory"},
		Articles:   config.ArticlesConfig{Provider: "memory"},
		HTTP:       config.HTTPConfig{TimeoutSeconds: 5},
	}
}

func TestNew_MemoryProviders(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	require.NotNil(t, a.Coordinator())
	require.NotNil(t, a.Server())
}

func TestNew_UnknownProviders(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig()
	cfg.Frontier.Provider = "redis"
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown frontier provider")

	cfg = memoryConfig()
	cfg.Articles.Provider = "sqlite"
	_, err = New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unknown articles provider")
}

func TestHostPolicies_Overrides(t *testing.T) {
	t.Parallel()

	p := config.PolitenessConfig{
		MinDelaySeconds:      1,
		MaxConcurrentPerHost: 4,
		Hosts: map[string]config.HostOverride{
			"slow.example": {MinDelaySeconds: 10},
			"busy.example": {MaxConcurrentPerHost: 1},
		},
	}
	policies := hostPolicies(p)
	require.Len(t, policies, 2)

	slow := policies["slow.example"]
	require.Equal(t, 10*time.Second, slow.MinDelay)
	require.Equal(t, 4, slow.MaxConcurrent, "unset fields inherit the default")

	busy := policies["busy.example"]
	require.Equal(t, time.Second, busy.MinDelay)
	require.Equal(t, 1, busy.MaxConcurrent)

	require.Nil(t, hostPolicies(config.PolitenessConfig{}))
}
