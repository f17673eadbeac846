// Package redis connects to Redis with go-redis and exposes a health check.
// The client backs usage.RedisStore:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store := usage.NewRedisStore(client, usage.WithKeyPrefix(cfg.KeyPrefix))
package redis
