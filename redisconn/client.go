/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package redisconn provides construction of Redis clients and execution of remote operations
// with a per-attempt timeout and a fixed retry budget.
package redisconn

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/acronis/go-resourcekit/log"
)

// ErrUnavailable is returned when Redis cannot be reached.
var ErrUnavailable = errors.New("redis is unavailable")

// NewClient creates a new Redis client and tests the connectivity with PING.
// Retries are disabled on the client level, Executor is responsible for them.
func NewClient(ctx context.Context, cfg *Config, logger log.FieldLogger) (*redis.Client, error) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		WriteTimeout: cfg.OperationTimeout,
		MaxRetries:   -1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, cfg.Address, err)
	}
	logger.Info("connected to redis", log.String("address", cfg.Address), log.Int("db", cfg.DB))
	return client, nil
}
