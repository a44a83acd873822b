package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"casebridge/internal/auth"
	"casebridge/internal/redis"
	"casebridge/internal/services"
	casebridge_errors "casebridge/pkg/errors"
	"casebridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return env
}

func TestAuthMiddleware(t *testing.T) {
	verifier := auth.NewJWTVerifier("secret")
	user := uuid.New()

	r := gin.New()
	r.GET("/me", AuthMiddleware(verifier), func(c *gin.Context) {
		id, _ := services.UserIDFromContext(c.Request.Context())
		c.String(http.StatusOK, id.String())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized || decodeEnvelope(t, w).Code != "UNAUTHENTICATED" {
		t.Fatalf("missing token: %d %s", w.Code, w.Body.String())
	}

	token, err := verifier.Sign(user, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != user.String() {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}
}

func TestErrorHandlerMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("conversation: %w", casebridge_errors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{casebridge_errors.ErrNotAuthorized, http.StatusForbidden, "NOT_AUTHORIZED"},
		{casebridge_errors.ErrAlreadyParticipant, http.StatusConflict, "ALREADY_PARTICIPANT"},
		{&casebridge_errors.DirectExistsError{ConversationID: uuid.New()}, http.StatusConflict, "ALREADY_EXISTS"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandler(logger.Nop()))
			r.GET("/", func(c *gin.Context) { _ = c.Error(tc.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			env := decodeEnvelope(t, w)
			if w.Code != tc.status || env.Code != tc.code || env.Success {
				t.Fatalf("got %d %+v", w.Code, env)
			}
			if tc.code == "INTERNAL_ERROR" && env.Error != "internal error" {
				t.Fatalf("internal detail leaked: %q", env.Error)
			}
		})
	}
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f fakeLimiter) AllowMessage(context.Context, string) (*redis.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &redis.RateLimitResult{Allowed: f.allowed, Limit: 60, ResetIn: 30 * time.Second}, nil
}

func TestMessageRateLimit(t *testing.T) {
	user := uuid.New()
	run := func(l MessageLimiter) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/send", func(c *gin.Context) {
			c.Request = c.Request.WithContext(services.WithUserContext(c.Request.Context(), user))
			c.Next()
		}, MessageRateLimitMiddleware(l, logger.Nop()), func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/send", nil))
		return w
	}

	if w := run(fakeLimiter{allowed: true}); w.Code != http.StatusCreated || w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Fatalf("allowed: %d %v", w.Code, w.Header())
	}
	if w := run(fakeLimiter{allowed: false}); w.Code != http.StatusTooManyRequests || decodeEnvelope(t, w).Code != "RATE_LIMITED" {
		t.Fatalf("limited: %d", w.Code)
	}
	if w := run(fakeLimiter{err: errors.New("dial tcp: refused")}); w.Code != http.StatusCreated {
		t.Fatalf("outage should pass: %d", w.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logger.RequestIdKey).(string)
		c.String(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Body.String()) != 32 || w.Header().Get("X-Request-Id") != w.Body.String() {
		t.Fatalf("generated id = %q header %q", w.Body.String(), w.Header().Get("X-Request-Id"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "abc" {
		t.Fatalf("propagated id = %q", w.Body.String())
	}
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("a", 100))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-Id"); len(got) != 32 {
		t.Fatalf("oversized id should be replaced, got %q", got)
	}
}
