package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_Endpoints(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		ready ReadinessFunc
		want  int
	}{
		{"healthz", "/healthz", nil, http.StatusOK},
		{"readyz default", "/readyz", nil, http.StatusOK},
		{"readyz ok", "/readyz", func() error { return nil }, http.StatusOK},
		{"readyz failing", "/readyz", func() error { return errors.New("draining") }, http.StatusServiceUnavailable},
		{"metrics", "/metrics", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Handler(tt.ready).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}
