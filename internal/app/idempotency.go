package app

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
	maxIdempotencyKeyLen = 255
)

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *responseRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

func idempotencyCacheKey(path, key string) string {
	sum := sha256.Sum256([]byte(path + "\x00" + key))
	return "idempotency:" + hex.EncodeToString(sum[:])
}

// idempotent replays the first successful response recorded under the
// request's Idempotency-Key for 24 hours. Requests without the header pass
// through untouched.
func (app *Application) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" || app.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		if len(key) > maxIdempotencyKeyLen {
			app.badRequestResponse(w, r, fmt.Errorf("%s must be at most %d characters long", idempotencyHeader, maxIdempotencyKeyLen))
			return
		}

		logger := app.contextGetLogger(r)
		cacheKey := idempotencyCacheKey(r.URL.Path, key)

		cached, err := app.redis.Get(r.Context(), cacheKey).Bytes()
		switch {
		case err == nil:
			var resp cachedResponse
			err = json.Unmarshal(cached, &resp)
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(resp.Status)
				w.Write(resp.Body)
				return
			}

			logger.Warn("discarding unreadable idempotent response", "error", err)
		case !errors.Is(err, redis.Nil):
			logger.Warn("idempotency cache unavailable", "error", err)
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status < 200 || rec.status >= 300 {
			return
		}

		data, err := json.Marshal(cachedResponse{Status: rec.status, Body: rec.body.Bytes()})
		if err != nil {
			logger.Error("failed to encode idempotent response", "error", err)
			return
		}

		err = app.redis.Set(r.Context(), cacheKey, data, idempotencyTTL).Err()
		if err != nil {
			logger.Warn("failed to store idempotent response", "error", err)
		}
	})
}
