package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/txprocessor/internal/auth"
	"github.com/danmuck/txprocessor/internal/handler"
	"github.com/danmuck/txprocessor/internal/processor"
	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

type fakeSource struct {
	state processor.State
}

func (f *fakeSource) State() processor.State { return f.state }

func (f *fakeSource) Stats() processor.Stats {
	return processor.Stats{State: f.state.String(), Pending: 2, Queued: 1, Active: 3, Workers: 4}
}

func (f *fakeSource) Registrations() []handler.Registration {
	return []handler.Registration{{FamilyName: "intkey", FamilyVersions: []string{"1.0"}, Namespaces: []string{"1cf126"}}}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestHealthAndReadiness(t *testing.T) {
	testlog.Start(t)
	src := &fakeSource{state: processor.StateRegistering}
	s := New("127.0.0.1:0", src)

	rr := get(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["status"] != "ok" || body["state"] != "registering" {
		t.Fatalf("unexpected health body: %v", body)
	}

	rr = get(t, s, "/ready")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready while registering: expected 503, got %d", rr.Code)
	}
	src.state = processor.StateServing
	rr = get(t, s, "/ready")
	if rr.Code != http.StatusOK {
		t.Fatalf("ready while serving: expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["ready"] != true {
		t.Fatalf("unexpected ready body: %v", body)
	}
}

func TestHandlersAndStatus(t *testing.T) {
	testlog.Start(t)
	s := New("127.0.0.1:0", &fakeSource{state: processor.StateServing})

	rr := get(t, s, "/handlers")
	if rr.Code != http.StatusOK {
		t.Fatalf("handlers: expected 200, got %d", rr.Code)
	}
	list, ok := decodeBody(t, rr)["handlers"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("unexpected handlers body: %s", rr.Body.String())
	}
	if h := list[0].(map[string]any); h["family"] != "intkey" {
		t.Fatalf("unexpected handler entry: %v", h)
	}

	rr = get(t, s, "/status")
	body := decodeBody(t, rr)
	if body["state"] != "serving" || body["pending"] != float64(2) || body["workers"] != float64(4) {
		t.Fatalf("unexpected status body: %v", body)
	}
}

func TestTokenGuardsIntrospectionRoutes(t *testing.T) {
	testlog.Start(t)
	s := New("127.0.0.1:0", &fakeSource{state: processor.StateServing}, WithAuth(auth.StaticToken{Token: "secret"}))

	for _, path := range []string{"/status", "/handlers"} {
		if rr := get(t, s, path); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rr.Code)
		}
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer secret")
		rr := httptest.NewRecorder()
		s.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s with token: expected 200, got %d", path, rr.Code)
		}
	}
	if rr := get(t, s, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New("127.0.0.1:0", &fakeSource{})
	rr := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "txproc_correlation_pending") {
		t.Fatalf("expected txproc metrics in output")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(ln.Addr().String(), &fakeSource{state: processor.StateServing})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
