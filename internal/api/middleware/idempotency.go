package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ayo6706/retail-banking/internal/api/problem"
	"github.com/ayo6706/retail-banking/internal/idempotency"
	"github.com/ayo6706/retail-banking/internal/observability"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayHeader         = "X-Idempotent-Replay"
	maxIdempotencyKeyLen = 128
)

// IdempotencyMiddleware replays the stored response when a mutating request
// repeats an Idempotency-Key. Requests without the header pass through.
// Must run after AuthMiddleware: keys are scoped per account.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	g := &replayGuard{store: store, logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, clientKey)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type replayGuard struct {
	store  *idempotency.Store
	logger *zap.Logger
}

func (g *replayGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, clientKey string) {
	if len(clientKey) > maxIdempotencyKeyLen {
		observability.IncrementIdempotencyEvent("invalid_key")
		writeIdempotencyProblem(w, r, http.StatusBadRequest, "invalid-key",
			fmt.Sprintf("%s must be at most %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLen))
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "Bad Request", "request body could not be read")
		return
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(payload))

	scoped := AccountIDFromContext(r.Context()).String() + ":" + clientKey
	fingerprint := fingerprintRequest(r.Method, r.URL.Path, payload)

	stored, err := g.store.Lookup(r.Context(), scoped, fingerprint)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		replay(w, stored)
		return
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		writeIdempotencyProblem(w, r, http.StatusConflict, "key-conflict",
			IdempotencyKeyHeader+" was already used with a different request")
		return
	case errors.Is(err, idempotency.ErrInProgress):
		g.awaitOriginal(w, r, scoped, fingerprint, "replay_after_wait")
		return
	case !errors.Is(err, idempotency.ErrNotFound):
		observability.IncrementIdempotencyEvent("lookup_error")
		g.logger.Warn("idempotency lookup failed", zap.Error(err))
	}

	won, err := g.store.Reserve(r.Context(), scoped, fingerprint)
	if err != nil {
		observability.IncrementIdempotencyEvent("reserve_error")
		g.logger.Error("idempotency reserve failed", zap.Error(err))
		writeIdempotencyProblem(w, r, http.StatusServiceUnavailable, "unavailable", "idempotency store unavailable")
		return
	}
	if !won {
		g.awaitOriginal(w, r, scoped, fingerprint, "replay_after_reserve")
		return
	}
	observability.IncrementIdempotencyEvent("reserved")

	capture := &responseCapture{ResponseWriter: w}
	completed := false
	defer func() {
		if !completed {
			g.release(r, scoped)
		}
	}()
	next.ServeHTTP(capture, r)
	completed = true
	g.settle(r, scoped, fingerprint, capture)
}

// release frees the key so the client may retry with it. It also runs while a
// handler panic unwinds, before RecoverMiddleware writes the 500.
func (g *replayGuard) release(r *http.Request, scoped string) {
	if err := g.store.Release(context.WithoutCancel(r.Context()), scoped); err != nil {
		g.logger.Warn("idempotency release failed", zap.Error(err), zap.String("key", scoped))
	}
	observability.IncrementIdempotencyEvent("released")
}

// settle stores the captured response, or frees the key after a server error
// so the client may retry with it.
func (g *replayGuard) settle(r *http.Request, scoped, fingerprint string, capture *responseCapture) {
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		g.release(r, scoped)
		return
	}

	contentType := capture.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if _, err := g.store.Finalize(r.Context(), scoped, fingerprint, status, capture.buf.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", scoped))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func (g *replayGuard) awaitOriginal(w http.ResponseWriter, r *http.Request, scoped, fingerprint, event string) {
	stored, err := g.store.WaitForCompletion(r.Context(), scoped, fingerprint)
	if err != nil {
		observability.IncrementIdempotencyEvent("in_progress_conflict")
		g.logger.Warn("idempotency wait failed", zap.Error(err))
		writeIdempotencyProblem(w, r, http.StatusConflict, "in-progress",
			"a request with this "+IdempotencyKeyHeader+" is still processing")
		return
	}
	observability.IncrementIdempotencyEvent(event)
	replay(w, stored)
}

func writeIdempotencyProblem(w http.ResponseWriter, r *http.Request, status int, kind, detail string) {
	problem.Write(w, r, status, problem.Type("idempotency/"+kind), http.StatusText(status), detail)
}

func fingerprintRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, stored *idempotency.Record) {
	w.Header().Set("Content-Type", stored.ContentType)
	w.Header().Set(ReplayHeader, stored.ServedBy)
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// responseCapture tees the handler output so it can be stored for replay.
type responseCapture struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
