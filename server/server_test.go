package server

import (
	"strings"
	"testing"
	"time"

	"github.com/evloop/httpcore/fake"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestServer_StartServesRequestsAndShutsDown(t *testing.T) {
	react := fake.NewReactor()
	router := fake.NewRouter()
	router.On("GET", "/hello", fake.OK("hi"))
	logger := fake.NewLogger()

	s := newServer(react, router, WithLogger(logger), WithCleanupInterval(30))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer s.Shutdown()

	fd := react.QueueAccept([]byte("GET /hello HTTP/1.1\r\n\r\n"))
	waitUntil(t, 2*time.Second, func() bool {
		return strings.Contains(string(react.Written(fd)), "hi")
	})

	snap := s.Snapshot()
	if !snap.Running {
		t.Fatal("Snapshot().Running must be true while the loop is up")
	}
	if snap.TotalConnections == 0 {
		t.Fatal("Snapshot().TotalConnections must advance after an accept")
	}

	s.Shutdown()
	if s.Snapshot().Running {
		t.Fatal("Snapshot().Running must be false after Shutdown")
	}
}

func TestServer_DebugProbesReportLiveState(t *testing.T) {
	react := fake.NewReactor()
	router := fake.NewRouter()
	s := newServer(react, router)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer s.Shutdown()

	probes := s.DebugProbes()
	state := probes.DumpState()
	if _, ok := state["connections"]; !ok {
		t.Fatal("expected a registered \"connections\" probe")
	}
	if _, ok := state["total_loops"]; !ok {
		t.Fatal("expected a registered \"total_loops\" probe")
	}
}

func TestServer_QueueAcceptsExternalWork(t *testing.T) {
	react := fake.NewReactor()
	router := fake.NewRouter()
	s := newServer(react, router)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer s.Shutdown()

	done := make(chan struct{})
	s.Queue().Execute(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task submitted via Server.Queue() never ran")
	}
}
