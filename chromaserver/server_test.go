package chromaserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T) {
	t.Setenv("CHROMA_IS_PERSISTENT", "false")
	t.Setenv("CHROMA_HEALTH_INTERVAL_SECONDS", "1")
	t.Setenv("CHROMA_LOG_LEVEL", "error")
}

func TestNewAndAddr(t *testing.T) {
	s := New("0.0.0.0", 8000)
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 8000, s.Port)
	assert.Equal(t, "0.0.0.0:8000", s.Addr())
	assert.Equal(t, "[::1]:9000", New("::1", 9000).Addr())
}

func TestStartupHealthTimeout(t *testing.T) {
	assert.Equal(t, 60*time.Second, startupHealthTimeout(1))
	assert.Equal(t, 60*time.Second, startupHealthTimeout(30))
	assert.Equal(t, 90*time.Second, startupHealthTimeout(45))
}

func TestRunContext_ServesAndShutsDown(t *testing.T) {
	testEnv(t)

	addrCh := make(chan net.Addr, 1)
	s := New("127.0.0.1", 0)
	s.onListen = func(a net.Addr) { addrCh <- a }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunContext(ctx) }()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(30 * time.Second):
		t.Fatal("server did not start listening")
	}

	resp, err := http.Get("http://" + addr.String() + "/api/v1/version")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"0.5.0"`, string(body))

	resp, err = http.Get("http://" + addr.String() + "/api/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), `"healthy"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunContext_ConfigError(t *testing.T) {
	testEnv(t)
	t.Setenv("CHROMA_DB_DRIVER", "postgres")
	t.Setenv("CHROMA_POSTGRES_DSN", "")

	err := New("127.0.0.1", 0).RunContext(context.Background())
	assert.Error(t, err)
}

func TestRunContext_PortInUse(t *testing.T) {
	testEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	err = New("127.0.0.1", port).RunContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}
