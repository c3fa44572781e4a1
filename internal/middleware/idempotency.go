package middleware

import (
    "context"
    "encoding/json"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
)

const (
    idemProcessing = "PROCESSING"
    idemLockTTL    = 30 * time.Second
    maxIdemKeyLen  = 128
)

// Idempotency makes a POST carrying an Idempotency-Key header execute at
// most once per user and key.  The first request takes a short SETNX lock;
// a concurrent duplicate gets 409.  Once the handler answers with a
// non-5xx status the response is stored for ttl and replayed to later
// duplicates with X-Idempotency-Replayed: true.  A 5xx answer drops the
// lock so the client may retry.  Without Redis the header is ignored.
func Idempotency(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) echo.MiddlewareFunc {
    if rdb == nil {
        return passThrough
    }
    if ttl <= 0 {
        ttl = 24 * time.Hour
    }
    if logger == nil {
        logger = slog.Default()
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            r := c.Request()
            header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
            if r.Method != http.MethodPost || header == "" {
                return next(c)
            }
            if len(header) > maxIdemKeyLen {
                return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "field": "Idempotency-Key", "message": "is too long"})
            }
            key := "idem:" + userKey(c) + ":" + r.URL.Path + ":" + header
            ctx := r.Context()

            val, err := rdb.Get(ctx, key).Result()
            switch {
            case err == nil && val == idemProcessing:
                return c.JSON(http.StatusConflict, echo.Map{"error": "request_in_progress"})
            case err == nil:
                var prev cachedResponse
                if json.Unmarshal([]byte(val), &prev) == nil {
                    c.Response().Header().Set("X-Idempotency-Replayed", "true")
                    return c.Blob(prev.Status, prev.ContentType, prev.Body)
                }
            case err != redis.Nil:
                logger.Warn("idempotency store unavailable; processing request", "key", key, "error", err)
                return next(c)
            }

            acquired, err := rdb.SetNX(ctx, key, idemProcessing, idemLockTTL).Result()
            if err != nil {
                logger.Warn("idempotency lock failed; processing request", "key", key, "error", err)
                return next(c)
            }
            if !acquired {
                return c.JSON(http.StatusConflict, echo.Map{"error": "request_in_progress"})
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
            c.Response().Writer = cw
            herr := next(c)
            if herr != nil {
                // echo's error handler writes the response after we return.
                c.Error(herr)
            }

            // Store with a fresh context: the client may be gone by now.
            bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
            defer cancel()
            if cw.status >= http.StatusInternalServerError {
                if err := rdb.Del(bg, key).Err(); err != nil {
                    logger.Warn("idempotency unlock failed", "key", key, "error", err)
                }
                return nil
            }
            payload, err := json.Marshal(cachedResponse{
                Status:      cw.status,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        cw.buf.Bytes(),
            })
            if err == nil {
                err = rdb.Set(bg, key, payload, ttl).Err()
            }
            if err != nil {
                logger.Warn("idempotency store failed", "key", key, "error", err)
            }
            return nil
        }
    }
}
