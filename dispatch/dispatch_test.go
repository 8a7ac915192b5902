package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/evloop/httpcore/connection"
	"github.com/evloop/httpcore/fake"
	"github.com/evloop/httpcore/protocol"
	"github.com/evloop/httpcore/reactor"
	"github.com/evloop/httpcore/taskqueue"
)

func newTestDispatcher() (*Dispatcher, *connection.Table, *fake.Reactor, *fake.Router, *taskqueue.Queue) {
	table := connection.NewTable()
	react := fake.NewReactor()
	router := fake.NewRouter()
	queue := taskqueue.New(func() bool { return true }, nil)
	d := &Dispatcher{
		Table:             table,
		Queue:             queue,
		Reactor:           react,
		Router:            router,
		Logger:            fake.NewLogger(),
		ResponseChunkSize: 0,
	}
	return d, table, react, router, queue
}

func TestDispatch_RouterSuccessWritesResponse(t *testing.T) {
	d, table, react, router, _ := newTestDispatcher()
	router.On("GET", "/hello", fake.OK("hi"))

	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	req := &protocol.Request{Method: protocol.MethodGET, Target: "/hello", Proto: "HTTP/1.1", Header: protocol.NewHeader(), KeepAlive: true}

	d.Dispatch(fd, c.ID, req)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(react.Written(fd)) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	out := string(react.Written(fd))
	if out == "" {
		t.Fatal("expected a response to have been written")
	}
	if !contains(out, "200") || !contains(out, "hi") {
		t.Fatalf("unexpected response: %q", out)
	}
	if c.State != connection.StateReadingRequest {
		t.Fatalf("state = %v, want StateReadingRequest after keep-alive reset", c.State)
	}
	if react.Closed(fd) {
		t.Fatal("connection must stay open on keep-alive")
	}
}

func TestDispatch_RouterNilIsNotFound(t *testing.T) {
	d, table, react, _, _ := newTestDispatcher()

	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	req := &protocol.Request{Method: protocol.MethodGET, Target: "/missing", Proto: "HTTP/1.1", Header: protocol.NewHeader(), KeepAlive: true}

	d.Dispatch(fd, c.ID, req)
	waitForWrite(t, react, fd)

	if !contains(string(react.Written(fd)), "404") {
		t.Fatalf("expected 404, got %q", react.Written(fd))
	}
}

func TestDispatch_RouterErrorIsInternalErrorAndCloses(t *testing.T) {
	d, table, react, router, _ := newTestDispatcher()
	router.On("GET", "/boom", fake.Failing())

	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	req := &protocol.Request{Method: protocol.MethodGET, Target: "/boom", Proto: "HTTP/1.1", Header: protocol.NewHeader(), KeepAlive: true}

	d.Dispatch(fd, c.ID, req)
	waitForWrite(t, react, fd)

	if !contains(string(react.Written(fd)), "500") {
		t.Fatalf("expected 500, got %q", react.Written(fd))
	}
	if !contains(string(react.Written(fd)), "Connection: close") {
		t.Fatal("5xx must close regardless of request keep-alive")
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !react.Closed(fd) {
		time.Sleep(time.Millisecond)
	}
	if !react.Closed(fd) {
		t.Fatal("connection must be closed after a non-keep-alive response finishes writing")
	}
}

func TestDispatch_RespondErrorAppliesDirectly(t *testing.T) {
	d, table, react, _, _ := newTestDispatcher()

	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	resp := protocol.FromParseError(protocol.ErrTooLarge())

	d.RespondError(fd, c.ID, resp, false)

	if !contains(string(react.Written(fd)), "413") {
		t.Fatalf("expected 413, got %q", react.Written(fd))
	}
	if !react.Closed(fd) {
		t.Fatal("a parse-error response must close the connection")
	}
}

func TestDispatch_StaleConnIDIsIgnored(t *testing.T) {
	d, table, react, router, _ := newTestDispatcher()
	router.On("GET", "/slow", fake.OK("slow"))

	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	req := &protocol.Request{Method: protocol.MethodGET, Target: "/slow", Proto: "HTTP/1.1", Header: protocol.NewHeader(), KeepAlive: true}

	d.Dispatch(fd, c.ID, req)

	// Simulate the connection having been evicted and the fd reused before
	// the router's completion lands.
	table.Remove(fd)
	table.Add(fd, time.Now())

	waitForNoPanic(t)
	// The stale completion must not resurrect the old state; since the
	// response never gets applied to a stale ID, nothing is written to this
	// fd via the original connection's identity.
}

func TestAttemptWrite_PartialWriteArmsEnableWrite(t *testing.T) {
	d, table, react, _, _ := newTestDispatcher()
	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	c.OutBuf = []byte("0123456789")
	c.WriteOffset = 0
	c.State = connection.StateWritingResponse
	c.KeepAlive = true

	react.BlockNextWrite(fd)
	d.AttemptWrite(c)

	if c.State != connection.StateWritingResponse {
		t.Fatal("a blocked write must leave the connection in WritingResponse")
	}
	if len(react.Written(fd)) != 0 {
		t.Fatal("a blocked write must not have written any bytes")
	}
	armed := false
	events, _ := react.Poll(0)
	for _, ev := range events {
		if ev.FD == fd && ev.Kind&reactor.EventWrite != 0 {
			armed = true
		}
	}
	if !armed {
		t.Fatal("a blocked write must arm Write-readiness")
	}

	// Retry: this time the write succeeds.
	d.AttemptWrite(c)
	if string(react.Written(fd)) != "0123456789" {
		t.Fatalf("written = %q, want full buffer after retry", react.Written(fd))
	}
	if c.State != connection.StateReadingRequest {
		t.Fatal("fully drained keep-alive response must reset to ReadingRequest")
	}
}

func TestAttemptWrite_ChunkSizeCapsOneCall(t *testing.T) {
	d, table, react, _, _ := newTestDispatcher()
	d.ResponseChunkSize = 4
	fd := react.QueueAccept(nil)
	c := table.Add(fd, time.Now())
	c.OutBuf = []byte("0123456789")
	c.State = connection.StateWritingResponse
	c.KeepAlive = false

	d.AttemptWrite(c)
	if string(react.Written(fd)) != "0123" {
		t.Fatalf("written = %q, want only the first chunk", react.Written(fd))
	}
	if c.FullyWritten() {
		t.Fatal("response must not be considered fully written after one capped chunk")
	}
}

func waitForWrite(t *testing.T, react *fake.Reactor, fd uintptr) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(react.Written(fd)) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a response to be written")
}

func waitForNoPanic(t *testing.T) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
