package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// newRPCServer answers eth_chainId and eth_blockNumber like a node would
func newRPCServer(t *testing.T, chainID, blockNumber string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = chainID
		case "eth_blockNumber":
			resp["result"] = blockNumber
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestManagerConnectsAndReadsBlockNumber(t *testing.T) {
	server := newRPCServer(t, "0x7a69", "0x10")
	defer server.Close()

	metricsManager := metrics.NewManagerWithRegistry(prometheus.NewRegistry())
	cfg := &config.ChainConfig{NodeURL: server.URL, ChainID: 31337, RequestTimeout: 5 * time.Second, RetryAttempts: 1}
	manager := NewManager(cfg, metricsManager)
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.Connect(ctx))

	latest, err := manager.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), latest)

	require.NoError(t, manager.HealthCheck(ctx))
	stats := manager.Stats()
	assert.Equal(t, uint64(31337), stats.ChainID)
	assert.Equal(t, uint64(16), stats.LatestBlock)
	assert.True(t, manager.IsConnected())

	count := testutil.ToFloat64(metricsManager.GetPrometheusMetrics().RPCRequestsTotal.WithLabelValues("eth_blockNumber", "success"))
	assert.Equal(t, 2.0, count)
}

func TestManagerFailsOverToBackupNode(t *testing.T) {
	dead := newRPCServer(t, "0x1", "0x1")
	dead.Close()

	backup := newRPCServer(t, "0x1", "0x20")
	defer backup.Close()

	cfg := &config.ChainConfig{
		NodeURL:        dead.URL,
		BackupNodes:    []string{backup.URL},
		ChainID:        1,
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  1,
	}
	manager := NewManager(cfg, nil)
	defer manager.Close()

	latest, err := manager.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(32), latest)
	assert.Equal(t, backup.URL, manager.Stats().CurrentURL)
}

func TestManagerRejectsWrongChain(t *testing.T) {
	server := newRPCServer(t, "0x5", "0x1")
	defer server.Close()

	cfg := &config.ChainConfig{NodeURL: server.URL, ChainID: 1, RequestTimeout: 2 * time.Second, RetryAttempts: 1}
	manager := NewManager(cfg, nil)

	err := manager.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeRPC))
}
