package config

// Redis backs the booking rate limiter, the read cache and the
// Idempotency-Key guard.  None of them is required for correctness of the
// seat or wallet invariants (those live in MySQL), so a Redis outage at
// startup only disables them.

import (
    "context"
    "crypto/tls"
    "log/slog"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from REDIS_ADDR or
// REDIS_HOST/REDIS_PORT, REDIS_PASSWORD, REDIS_DB and REDIS_TLS.  It
// returns nil when the server cannot be pinged within two seconds.
func NewRedisClient(logger *slog.Logger) *redis.Client {
    addr := envStr("REDIS_ADDR", "")
    host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", "")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    if addr == "" {
        addr = "localhost:6379"
    }
    var tlsConf *tls.Config
    if v := envStr("REDIS_TLS", ""); strings.EqualFold(v, "true") || v == "1" {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:         addr,
        Password:     envStr("REDIS_PASSWORD", ""),
        DB:           envInt("REDIS_DB", 0),
        TLSConfig:    tlsConf,
        DialTimeout:  2 * time.Second,
        ReadTimeout:  500 * time.Millisecond,
        WriteTimeout: 500 * time.Millisecond,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        logger.Warn("redis unavailable; rate limit, cache and idempotency disabled", "addr", addr, "error", err)
        _ = client.Close()
        return nil
    }
    return client
}
