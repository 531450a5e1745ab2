package uds

import (
	"encoding/json"
	"log"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(socketPath)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	c := NewClient(socketPath)
	c.SetTimeout(5 * time.Second)
	return srv, c
}

func TestRequestResponseRoundTrip(t *testing.T) {
	srv, c := startServer(t)
	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(map[string]string{"status": "ok"})
	})

	resp, err := c.SendCommand("ping", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response not successful: %+v", resp.Error)
	}
	var data map[string]string
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["status"] != "ok" {
		t.Errorf("status = %q", data["status"])
	}
}

func TestHandlerReceivesParams(t *testing.T) {
	srv, c := startServer(t)
	srv.Handle("echo", func(req *Request) *Response {
		var params map[string]string
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return ErrorResponse(ErrCodeInternal, err.Error())
		}
		return SuccessResponse(params)
	})

	resp, err := c.SendCommand("echo", map[string]string{"crew": "Jebediah Kerman"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var data map[string]string
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["crew"] != "Jebediah Kerman" {
		t.Errorf("crew = %q", data["crew"])
	}
}

func TestUnknownCommand(t *testing.T) {
	_, c := startServer(t)

	resp, err := c.SendCommand("bogus", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success {
		t.Fatal("expected failure response")
	}
	if resp.Error.Code != ErrCodeUnknownCommand {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	srv, c := startServer(t)
	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(nil)
	})

	resp, err := c.Send(&Request{ProtocolVersion: 99, Command: "ping"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success || resp.Error.Code != ErrCodeProtocolMismatch {
		t.Errorf("response = %+v", resp)
	}
}

func TestServerSurvivesPanickingHandler(t *testing.T) {
	srv, c := startServer(t)
	srv.Handle("boom", func(req *Request) *Response {
		panic("handler exploded")
	})
	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(nil)
	})

	// The panicking connection is dropped without a response.
	if _, err := c.SendCommand("boom", nil); err == nil {
		t.Log("panicking handler still produced a response")
	}

	resp, err := c.SendCommand("ping", nil)
	if err != nil {
		t.Fatalf("server died after panic: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response not successful: %+v", resp.Error)
	}
}

func TestConcurrentClients(t *testing.T) {
	srv, c := startServer(t)
	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(map[string]string{"status": "ok"})
	})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.SendCommand("ping", nil)
			if err != nil {
				errs <- err
				return
			}
			if !resp.Success {
				errs <- nil
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent request failed: %v", err)
	}
}

func TestGarbageFrameGoesToInjectedLogger(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(socketPath)
	var buf syncBuffer
	srv.SetLogger(log.New(&buf, "", 0))
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// A frame length with no payload behind it.
	conn.Write([]byte{0, 0, 0, 42})
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "control socket read") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("diagnostic never reached the injected logger: %q", buf.String())
}

func TestStopTwiceIsSafe(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(socketPath)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStopRemovesSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(socketPath)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	c := NewClient(socketPath)
	c.SetTimeout(200 * time.Millisecond)
	if _, err := c.SendCommand("ping", nil); err == nil {
		t.Fatal("expected connection failure after Stop")
	}
}
