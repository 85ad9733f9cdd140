package config

import (
	"crypto/tls"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client for cfg. The result satisfies store.Conn.
// Cluster mode connects with a ClusterClient; the bucket keys of one identity
// share a hash tag and always land on the same shard.
func NewRedisClient(cfg RedisConfig) redis.UniversalClient {
	var tlsConfig *tls.Config
	if cfg.TLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.Addrs,
			Username:    cfg.Username,
			Password:    cfg.Password,
			DialTimeout: cfg.DialTimeout,
			TLSConfig:   tlsConfig,
		})
	}

	addr := "localhost:6379"
	if len(cfg.Addrs) > 0 {
		addr = cfg.Addrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		TLSConfig:   tlsConfig,
	})
}
