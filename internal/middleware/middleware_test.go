package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func TestRequireJWT(t *testing.T) {
	auth := service.NewAuthService("test-secret")
	other := service.NewAuthService("other-secret")

	student, _ := auth.SignToken(7, service.TokenTypeStudent, nil, time.Hour)
	staff, _ := auth.SignToken(99, service.TokenTypeStaff, []string{string(model.PermissionResultsGrade)}, time.Hour)
	expired, _ := auth.SignToken(7, service.TokenTypeStudent, nil, -time.Minute)
	forged, _ := other.SignToken(7, service.TokenTypeStudent, nil, time.Hour)

	r := gin.New()
	r.GET("/student", RequireStudentJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", GetClaims(c).UserID)
	})
	r.GET("/staff", RequireStaffJWT(auth), RequirePermission(model.PermissionResultsGrade), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/publish", RequireStaffJWT(auth),
		RequireAnyPermission(model.PermissionResultsPublish, model.PermissionAttemptsTerminate),
		func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ws", RequireStudentWSAuth(auth), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	tests := []struct {
		name   string
		path   string
		header string
		status int
		code   response.ErrCode
	}{
		{"student ok", "/student", "Bearer " + student, http.StatusOK, ""},
		{"lowercase scheme", "/student", "bearer " + student, http.StatusOK, ""},
		{"missing token", "/student", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"expired", "/student", "Bearer " + expired, http.StatusUnauthorized, response.ErrTokenExpired},
		{"wrong secret", "/student", "Bearer " + forged, http.StatusUnauthorized, response.ErrTokenInvalid},
		{"staff on student route", "/student", "Bearer " + staff, http.StatusForbidden, response.ErrStudentAccessOnly},
		{"student on staff route", "/staff", "Bearer " + student, http.StatusForbidden, response.ErrStaffAccessOnly},
		{"staff with permission", "/staff", "Bearer " + staff, http.StatusOK, ""},
		{"staff without permission", "/publish", "Bearer " + staff, http.StatusForbidden, response.ErrPermissionDenied},
		{"ws query token", "/ws?token=" + student, "", http.StatusOK, ""},
		{"ws header only", "/ws", "Bearer " + student, http.StatusUnauthorized, response.ErrTokenRequired},
		{"sse query fallback", "/staff?token=" + staff, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if got := errorCode(t, rec); got != tt.code {
					t.Errorf("code = %s, want %s", got, tt.code)
				}
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2, time.Minute, ByClientIP)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests must pass")
	}
	if rl.Allow("a") {
		t.Error("third request within the interval must be rejected")
	}
	if !rl.Allow("b") {
		t.Error("buckets must be independent")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("bucket must refill after the interval")
	}

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	if len(rl.buckets) != 0 {
		t.Errorf("buckets after cleanup = %d, want 0", len(rl.buckets))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, time.Hour, ByUser)
	r := gin.New()
	r.POST("/events", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	for i, want := range []int{http.StatusAccepted, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
		if rec.Code != want {
			t.Errorf("request %d status = %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("proctoring event ", 200)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	get := func(path, accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", accept)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("large body is compressed", func(t *testing.T) {
		rec := get("/large", "gzip, br;q=1.0")
		if rec.Header().Get("Content-Encoding") != "br" {
			t.Fatalf("Content-Encoding = %q, want br", rec.Header().Get("Content-Encoding"))
		}
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(rec.Body.Bytes())))
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if string(plain) != large {
			t.Error("decompressed body differs")
		}
	})

	t.Run("small body is untouched", func(t *testing.T) {
		rec := get("/small", "br")
		if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != "ok" {
			t.Errorf("encoding = %q body = %q", rec.Header().Get("Content-Encoding"), rec.Body.String())
		}
	})

	t.Run("no accept", func(t *testing.T) {
		rec := get("/large", "gzip")
		if rec.Header().Get("Content-Encoding") != "" || rec.Body.String() != large {
			t.Error("body must pass through when br is not accepted")
		}
	})

	t.Run("empty body keeps status", func(t *testing.T) {
		if rec := get("/empty", "br"); rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}
