package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tickd/internal/reactor"
	"tickd/internal/runtime/supervisor"
	"tickd/internal/storage"
	logx "tickd/pkg/logx"
)

type fakeSource struct {
	err       error
	runs      []storage.RunRecord
	disabled  bool
	lastLimit int
}

func (f *fakeSource) Plans() reactor.Snapshot {
	return reactor.Snapshot{Running: true, Timezone: "UTC", Plans: []reactor.PlanInfo{{Name: "backup", Runs: 3}}}
}

func (f *fakeSource) Goroutines() supervisor.Snapshot {
	return supervisor.Snapshot{Goroutines: []supervisor.GoroutineStats{{Name: "reactor", Active: 1}}}
}

func (f *fakeSource) Err() error { return f.err }

func (f *fakeSource) History(_ context.Context, limit int) ([]storage.RunRecord, error) {
	f.lastLimit = limit
	if f.disabled {
		return nil, storage.ErrDisabled
	}
	return append([]storage.RunRecord(nil), f.runs...), nil
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	h := New(Config{}, src, logx.Nop()).Handler()
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("code=%d, want 200", rec.Code)
	}

	src = &fakeSource{err: errors.New("reactor: boom")}
	h = New(Config{}, src, logx.Nop()).Handler()
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d, want 503", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	h := New(Config{}, &fakeSource{}, logx.Nop()).Handler()
	rec := get(t, h, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d, want 200", rec.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Reactor.Plans) != 1 || got.Reactor.Plans[0].Name != "backup" || got.Reactor.Plans[0].Runs != 3 {
		t.Fatalf("plans=%+v", got.Reactor.Plans)
	}
	if len(got.Supervisor.Goroutines) != 1 || got.Supervisor.Goroutines[0].Name != "reactor" {
		t.Fatalf("goroutines=%+v", got.Supervisor.Goroutines)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	runs := []storage.RunRecord{
		{At: at, Action: "a", OK: true},
		{At: at.Add(time.Minute), Action: "b", OK: false, Error: "boom"},
		{At: at.Add(2 * time.Minute), Action: "a", OK: true},
	}

	cases := []struct {
		name      string
		src       *fakeSource
		target    string
		wantCode  int
		wantRuns  int
		wantLimit int
	}{
		{name: "default limit", src: &fakeSource{runs: runs}, target: "/history", wantCode: 200, wantRuns: 3, wantLimit: 50},
		{name: "filter by action", src: &fakeSource{runs: runs}, target: "/history?action=a&limit=10", wantCode: 200, wantRuns: 2, wantLimit: 10},
		{name: "limit too large", src: &fakeSource{runs: runs}, target: "/history?limit=5000", wantCode: 400},
		{name: "limit not a number", src: &fakeSource{runs: runs}, target: "/history?limit=ten", wantCode: 400},
		{name: "disabled", src: &fakeSource{disabled: true}, target: "/history", wantCode: 404, wantLimit: 50},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := get(t, New(Config{}, tc.src, logx.Nop()).Handler(), tc.target)
			if rec.Code != tc.wantCode {
				t.Fatalf("code=%d, want %d: %s", rec.Code, tc.wantCode, rec.Body.String())
			}
			if tc.src.lastLimit != tc.wantLimit {
				t.Fatalf("limit=%d, want %d", tc.src.lastLimit, tc.wantLimit)
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Runs []storage.RunRecord `json:"runs"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Runs) != tc.wantRuns {
				t.Fatalf("runs=%d, want %d", len(body.Runs), tc.wantRuns)
			}
		})
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "127.0.0.1:0"}, &fakeSource{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run=%v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()

	h := New(Config{Token: "s3cret", Pprof: true}, &fakeSource{}, logx.Nop()).Handler()
	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "missing", target: "/status", want: http.StatusUnauthorized},
		{name: "wrong query", target: "/status?token=nope", want: http.StatusUnauthorized},
		{name: "query", target: "/status?token=s3cret", want: http.StatusOK},
		{name: "bearer", target: "/status", header: "Bearer s3cret", want: http.StatusOK},
		{name: "wrong bearer", target: "/status", header: "Bearer s3cre", want: http.StatusUnauthorized},
		{name: "pprof guarded", target: "/debug/pprof/", want: http.StatusUnauthorized},
		{name: "pprof index", target: "/debug/pprof/?token=s3cret", want: http.StatusOK},
		{name: "pprof named profile", target: "/debug/pprof/goroutine?token=s3cret&debug=1", want: http.StatusOK},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("code=%d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestPprofDisabledByDefault(t *testing.T) {
	t.Parallel()

	h := New(Config{}, &fakeSource{}, logx.Nop()).Handler()
	if rec := get(t, h, "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d, want 404", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:9321": true,
		"localhost:80":   true,
		"[::1]:9321":     true,
		":9321":          false,
		"0.0.0.0:9321":   false,
		"10.0.0.5:9321":  false,
		"nope":           false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q)=%v, want %v", addr, got, want)
		}
	}
}

func TestRunRefusesOpenAddrWithoutToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Addr: "0.0.0.0:0"}, &fakeSource{}, logx.Nop())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected refusal for non-loopback addr without token")
	}
}
