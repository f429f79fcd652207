package control

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type fakeReloader struct {
	err   error
	calls int
}

func (f *fakeReloader) Reload() error {
	f.calls++
	return f.err
}

func newTestServer(reloader Reloader) *Server {
	return NewServer(Config{}, reloader, zap.NewNop())
}

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	s := newTestServer(&fakeReloader{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.handleHealthz(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHandleReloadConfig_RejectsNonPost(t *testing.T) {
	s := newTestServer(&fakeReloader{})
	req := httptest.NewRequest(http.MethodGet, "/reload-config", nil)
	w := httptest.NewRecorder()
	s.handleReloadConfig(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandleReloadConfig_CallsReloader(t *testing.T) {
	reloader := &fakeReloader{}
	s := newTestServer(reloader)
	req := httptest.NewRequest(http.MethodPost, "/reload-config", nil)
	w := httptest.NewRecorder()
	s.handleReloadConfig(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if reloader.calls != 1 {
		t.Errorf("expected Reload to be called once, got %d", reloader.calls)
	}
}

func TestHandleReloadConfig_ReportsReloadFailure(t *testing.T) {
	reloader := &fakeReloader{err: errors.New("boom")}
	s := newTestServer(reloader)
	req := httptest.NewRequest(http.MethodPost, "/reload-config", nil)
	w := httptest.NewRecorder()
	s.handleReloadConfig(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
