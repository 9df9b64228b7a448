package repository

import (
	"github.com/navikt/myrooms/internal/config"
	"github.com/navikt/myrooms/internal/repository/memory"
	"github.com/navikt/myrooms/internal/repository/redis"
)

// NewRepository returns the Redis repository when enabled, otherwise the in-memory one
func NewRepository(cfg config.RedisConfig) (Repository, error) {
	if cfg.Enabled {
		repo, err := redis.NewRepository(cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return memory.NewRepository(cfg.SessionTTL), nil
}
