package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMatchWildcardRoute(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"/api/v1/runs/abc", "/api/v1/runs/*", true},
		{"/api/v1/runs/abc/steps", "/api/v1/runs/*/steps", true},
		{"/api/v1/runs/abc/logs", "/api/v1/runs/*/steps", false},
		{"/api/v1/runs", "/api/v1/runs/*", false},
		{"/api/v1/runs/", "/api/v1/runs/*", false},
		{"/swagger/index.html", "/swagger/*", true},
		{"/swagger/a/b.js", "/swagger/*", true},
		{"/api/v1/jobs/etl/runs", "/api/v1/jobs/*/runs", true},
		{"/api/v1/jobs//runs", "/api/v1/jobs/*/runs", false},
	}
	for _, tt := range tests {
		if got := matchWildcardRoute(tt.path, tt.pattern); got != tt.want {
			t.Errorf("matchWildcardRoute(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func text(body string) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}
}

func TestRouterDispatch(t *testing.T) {
	r := New(nil)
	r.GET("/api/v1/runs", text("list"))
	r.GET("/api/v1/runs/*/steps", text("steps"))
	r.GET("/api/v1/runs/*", text("run"))
	r.POST("/api/v1/jobs/*/runs", text("trigger"))

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/api/v1/runs", http.StatusOK, "list"},
		{http.MethodGet, "/api/v1/runs/r1/steps", http.StatusOK, "steps"},
		{http.MethodGet, "/api/v1/runs/r1", http.StatusOK, "run"},
		{http.MethodPost, "/api/v1/jobs/etl/runs", http.StatusOK, "trigger"},
		{http.MethodGet, "/api/v1/jobs/etl/runs", http.StatusMethodNotAllowed, ""},
		{http.MethodDelete, "/api/v1/runs", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s %s: status %d, want %d", tt.method, tt.path, rec.Code, tt.status)
			continue
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("%s %s: body %q, want %q", tt.method, tt.path, rec.Body.String(), tt.body)
		}
	}
}

func TestRegisterTracksPaths(t *testing.T) {
	r := New(nil)
	r.GET("/a", text("a"))
	r.POST("/a", text("a"))
	if len(r.Routes()) != 2 || len(r.Paths()) != 1 {
		t.Fatalf("routes=%d paths=%d", len(r.Routes()), len(r.Paths()))
	}
}
