package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/etherfund-dashboard/internal/config"
	"github.com/smartdevs17/etherfund-dashboard/internal/metrics"
	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Manager owns the JSON-RPC connection to the node. It is the explicit
// provider handle handed to the contract gateway; every node call goes
// through it so failover and metrics live in one place.
type Manager struct {
	config       *config.ChainConfig
	urls         []string
	currentIndex int
	client       *ethclient.Client
	mu           sync.RWMutex
	logger       *logrus.Entry
	stats        ConnectionStats

	metricsManager *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewManager creates a new connection manager
func NewManager(cfg *config.ChainConfig, metricsManager *metrics.Manager) *Manager {
	urls := []string{cfg.NodeURL}
	urls = append(urls, cfg.BackupNodes...)

	return &Manager{
		config:         cfg,
		urls:           urls,
		logger:         utils.ComponentLogger("connection"),
		metricsManager: metricsManager,
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// Connect dials the first healthy node, trying backups in order
func (cm *Manager) Connect(ctx context.Context) error {
	_, err := cm.getClient(ctx)
	return err
}

func (cm *Manager) getClient(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()

	if client != nil {
		return client, nil
	}
	return cm.connect(ctx)
}

// connect establishes a new connection
func (cm *Manager) connect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, nil
	}

	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	urls := cm.rotatedURLs()
	for attempt := 0; attempt < attempts; attempt++ {
		for _, url := range urls {
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Info("Attempting connection")

			client, err := cm.dialWithTimeout(ctx, url)
			if err != nil {
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Connection failed")
				cm.stats.FailedRequests++
				continue
			}

			chainID, err := cm.quickHealthCheck(ctx, client)
			if err != nil {
				client.Close()
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Health check failed after connection")
				continue
			}

			cm.client = client
			cm.currentIndex = indexOf(cm.urls, url)
			cm.stats.CurrentURL = url
			cm.stats.ChainID = chainID
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.IsHealthy = true

			cm.logger.WithFields(logrus.Fields{"url": url, "chain_id": chainID}).Info("Connected to node")
			return client, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, utils.FromContext(ctx.Err(), "Connection attempt aborted")
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeRPC, "Failed to connect to any node",
		"All connection attempts exhausted")
}

// dialWithTimeout creates a connection with timeout
func (cm *Manager) dialWithTimeout(ctx context.Context, url string) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.requestTimeout())
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

// quickHealthCheck verifies the node answers and serves the configured chain
func (cm *Manager) quickHealthCheck(ctx context.Context, client *ethclient.Client) (uint64, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chainID, err := client.ChainID(checkCtx)
	if err != nil {
		return 0, err
	}
	if cm.config.ChainID != 0 && chainID.Int64() != cm.config.ChainID {
		return 0, fmt.Errorf("chain id mismatch: expected %d, got %s", cm.config.ChainID, chainID)
	}
	return chainID.Uint64(), nil
}

// reconnect drops the current client so the next call dials again
func (cm *Manager) reconnect() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}
	cm.stats.IsHealthy = false
	cm.stats.Reconnects++
	cm.currentIndex = (cm.currentIndex + 1) % len(cm.urls)
}

// HealthCheck checks connectivity and records the latest block
func (cm *Manager) HealthCheck(ctx context.Context) error {
	latest, err := cm.BlockNumber(ctx)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = latest
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.IsHealthy = true
	cm.mu.Unlock()

	cm.logger.WithFields(logrus.Fields{"latest_block": latest, "url": cm.stats.CurrentURL}).Debug("Health check passed")
	return nil
}

// IsConnected returns whether the manager is connected
func (cm *Manager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.stats.IsHealthy
}

// Close closes the connection
func (cm *Manager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}

	cm.stats.IsHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *Manager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

// rotatedURLs returns all URLs starting from the current index
func (cm *Manager) rotatedURLs() []string {
	if cm.currentIndex > 0 && cm.currentIndex < len(cm.urls) {
		rotated := make([]string, 0, len(cm.urls))
		rotated = append(rotated, cm.urls[cm.currentIndex:]...)
		rotated = append(rotated, cm.urls[:cm.currentIndex]...)
		return rotated
	}
	return cm.urls
}

func (cm *Manager) requestTimeout() time.Duration {
	if cm.config.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return cm.config.RequestTimeout
}

func indexOf(urls []string, url string) int {
	for i, u := range urls {
		if u == url {
			return i
		}
	}
	return 0
}

// observe runs one node call with a request timeout, metrics and error classification.
// Calls are not retried; a transport failure drops the client so the next call can fail over.
func (cm *Manager) observe(ctx context.Context, method string, call func(ctx context.Context, client *ethclient.Client) error) error {
	start := time.Now()

	client, err := cm.getClient(ctx)
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, cm.requestTimeout())
		err = call(callCtx, client)
		cancel()
	}

	cm.mu.Lock()
	cm.stats.TotalRequests++
	if err != nil {
		cm.stats.FailedRequests++
	}
	cm.mu.Unlock()

	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().RecordRPCRequest(method, metrics.StatusLabel(err), time.Since(start))
	}

	if err == nil || err == ethereum.NotFound {
		return err
	}
	if utils.CodeOf(err) == "" && ctx.Err() == nil {
		cm.logger.WithFields(logrus.Fields{"method": method, "error": err}).Warn("Node call failed")
		if isTransportError(err) {
			cm.reconnect()
		}
	}
	return utils.FromContext(err, fmt.Sprintf("%s failed", method))
}

// isTransportError reports whether err came from the connection rather than the node's answer
func isTransportError(err error) bool {
	if _, ok := err.(interface{ ErrorCode() int }); ok {
		return false
	}
	return true
}

// CallContract executes a read-only contract call
func (cm *Manager) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := cm.observe(ctx, "eth_call", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		out, err = c.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// FilterLogs runs eth_getLogs
func (cm *Manager) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := cm.observe(ctx, "eth_getLogs", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		logs, err = c.FilterLogs(ctx, q)
		return err
	})
	return logs, err
}

// BlockNumber returns the latest block number
func (cm *Manager) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := cm.observe(ctx, "eth_blockNumber", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		number, err = c.BlockNumber(ctx)
		return err
	})
	return number, err
}

// ChainID returns the chain id of the connected node
func (cm *Manager) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := cm.observe(ctx, "eth_chainId", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		id, err = c.ChainID(ctx)
		return err
	})
	return id, err
}

// PendingNonceAt returns the next nonce for account
func (cm *Manager) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := cm.observe(ctx, "eth_getTransactionCount", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		nonce, err = c.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasPrice returns the node's gas price suggestion
func (cm *Manager) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := cm.observe(ctx, "eth_gasPrice", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		price, err = c.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// EstimateGas estimates the gas needed for msg
func (cm *Manager) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := cm.observe(ctx, "eth_estimateGas", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		gas, err = c.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SendTransaction broadcasts a signed transaction
func (cm *Manager) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return cm.observe(ctx, "eth_sendRawTransaction", func(ctx context.Context, c *ethclient.Client) error {
		return c.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt returns the receipt of a mined transaction, or ethereum.NotFound
func (cm *Manager) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := cm.observe(ctx, "eth_getTransactionReceipt", func(ctx context.Context, c *ethclient.Client) error {
		var err error
		receipt, err = c.TransactionReceipt(ctx, txHash)
		return err
	})
	return receipt, err
}
