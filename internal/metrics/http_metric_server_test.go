package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func getFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
			t.Skipf("skipping network-bound test: %v", err)
		}
		t.Fatalf("failed to get free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 100 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become available within %v", addr, timeout)
}

func TestServerEndpoints(t *testing.T) {
	t.Parallel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))
	server := NewServer(addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	waitForServer(t, addr, 2*time.Second)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/metrics", addr))
	if err != nil {
		t.Fatalf("GET /api/v1/metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error after graceful shutdown: %v", err)
	}
}

func TestServerStartInvalidAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		addr string
	}{
		{name: "empty", addr: ""},
		{name: "no port", addr: "127.0.0.1"},
		{name: "unresolvable", addr: "no.such.host.invalid:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := NewServer(tc.addr).Start(); err == nil {
				t.Fatalf("expected error for address %q", tc.addr)
			}
		})
	}
}

func TestServerStartTLSMissingCert(t *testing.T) {
	t.Parallel()

	server := NewServer("127.0.0.1:0")
	err := server.StartTLS("/nonexistent/cert.pem", "/nonexistent/key.pem", "", 0)
	if err == nil {
		t.Fatalf("expected error for missing certificate files")
	}
}

func TestServerShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	server := NewServer("127.0.0.1:9999")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Shutdown of a never-started server is a no-op.
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}
