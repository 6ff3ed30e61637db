package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestOK(t *testing.T) {
	r := setupTestRouter()
	r.GET("/test", func(c *gin.Context) {
		OK(c, gin.H{"message": "test"})
	})

	w := serve(r)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Code != CodeSuccess || resp.Message != "success" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.Data == nil {
		t.Error("Expected data to be non-nil")
	}
}

func TestAccepted(t *testing.T) {
	r := setupTestRouter()
	r.GET("/test", func(c *gin.Context) {
		Accepted(c, "reindex started", gin.H{"total": 3})
	})

	w := serve(r)
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	var resp Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Message != "reindex started" {
		t.Errorf("Expected message 'reindex started', got '%s'", resp.Message)
	}
}

func TestFailErr(t *testing.T) {
	r := setupTestRouter()
	r.GET("/test", func(c *gin.Context) {
		FailErr(c, ErrStoreError("stats unavailable", errors.New("redis: connection refused")))
	})

	w := serve(r)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var resp Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != CodeStoreError {
		t.Errorf("Expected code %d, got %d", CodeStoreError, resp.Code)
	}
	if resp.Message != "stats unavailable" {
		t.Errorf("Expected message 'stats unavailable', got '%s'", resp.Message)
	}
	if resp.Data != nil {
		t.Error("Expected data to be nil for error response")
	}
}
