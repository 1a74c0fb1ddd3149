package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/copse/internal/config"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the connectivity check made before any command runs.
const pingTimeout = 5 * time.Second

// loadConfig reads copse.yml from the --config path.
func loadConfig() (*config.CopseConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorFrom(err,
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s, or point --config at another file", configPath)},
		)
	}
	return cfg, nil
}

// openStore returns the Redis blackboard when redis_url is set and an
// in-process one otherwise.
func openStore(ctx context.Context, cfg *config.CopseConfig) (blackboard.Store, error) {
	if cfg.RedisURL == "" {
		return blackboard.NewMemory(), nil
	}
	return openRedis(ctx, cfg)
}

// openRedis connects to the Redis blackboard named by cfg. Commands that
// talk to another process need this shared store.
func openRedis(ctx context.Context, cfg *config.CopseConfig) (*blackboard.Client, error) {
	if cfg.RedisURL == "" {
		return nil, printer.ErrorFrom(
			apperrors.NewConfigError("redis_url is not set"),
			"no shared blackboard configured",
			"This command talks to other copse processes through Redis.",
			[]string{"Set redis_url in copse.yml, or export COPSE_REDIS_URL"},
		)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, printer.ErrorFrom(
			apperrors.NewConfigError("invalid redis_url: %v", err),
			"invalid redis_url",
			fmt.Sprintf("Could not parse %q: %v", cfg.RedisURL, err),
			nil,
		)
	}

	client, err := blackboard.NewClient(opts, cfg.Instance)
	if err != nil {
		return nil, printer.ErrorFrom(err, "failed to create blackboard client", "", nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"blackboard unreachable",
			err.Error(),
			map[string]string{"Redis": cfg.RedisURL, "Instance": cfg.Instance},
			[]string{"Check that Redis is running and reachable from this host"},
		)
	}
	return client, nil
}
