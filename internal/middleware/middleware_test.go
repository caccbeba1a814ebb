package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "middleware-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func validClaims(roles ...string) jwt.MapClaims {
	return jwt.MapClaims{
		"uid":      "u1",
		"username": "advocate",
		"roles":    roles,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func setupAuthRouter(guard ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWTAuth(testSecret)}, guard...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	r.GET("/me", handlers...)
	return r
}

func doGet(r *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := setupAuthRouter()
	good := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

	tests := []struct {
		name   string
		path   string
		bearer string
		code   int
	}{
		{"missing", "/me", "", http.StatusUnauthorized},
		{"header", "/me", good, http.StatusOK},
		{"query param", "/me?token=" + good, "", http.StatusOK},
		{"wrong secret", "/me", signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), http.StatusUnauthorized},
		{"expired", "/me", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"uid": "u1", "exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"wrong algorithm", "/me", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims()), http.StatusUnauthorized},
		{"no uid", "/me", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGet(r, tt.path, tt.bearer)
			if w.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := setupAuthRouter(RequireRole("admin"))

	w := doGet(r, "/me", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("advocate")))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
	w = doGet(r, "/me", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("advocate", "admin")))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequestIDEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "req-123" || w.Body.String() != "req-123" {
		t.Errorf("Expected request id echoed, got header=%q body=%q", w.Header().Get("X-Request-ID"), w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated request id")
	}
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/drafts", BodyLimit(16), func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, body)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/drafts", strings.NewReader(`{"a":"b"}`)))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/drafts", strings.NewReader(`{"case_type":"writ petition"}`)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d: %s", w.Code, w.Body.String())
	}
}
