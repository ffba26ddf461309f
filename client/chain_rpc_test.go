package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChainRPCClient_BlockHeight(t *testing.T) {
	t.Parallel()

	type seenReq struct {
		auth   string
		method string
	}
	seen := make(chan seenReq, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		seen <- seenReq{
			auth:   r.Header.Get("Authorization"),
			method: req.Method,
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":0,"result":"0x1a"}`))
	}))
	t.Cleanup(srv.Close)

	height, err := NewChainRPCClient(srv.URL, "oracle-key").BlockHeight()
	require.NoError(t, err)
	require.EqualValues(t, 26, height)
	req := <-seen
	require.Equal(t, "Bearer oracle-key", req.auth)
	require.Equal(t, "eth_blockNumber", req.method)
}

func TestChainRPCClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		close(release)
	})

	rpc := NewChainRPCClientWithTimeout(srv.URL, "", 50*time.Millisecond)
	start := time.Now()
	_, err := rpc.BlockHeight()
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)

	_, err = rpc.BlockHashesBatch(0, 2)
	require.Error(t, err)
}
