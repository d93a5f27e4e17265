package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"chain-tax-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	network     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a JSON-RPC client for the node of one network.
func NewHTTPClient(endpoint, network string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		network:     network,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Network returns the network this client is bound to.
func (c *HTTPClient) Network() string {
	return c.network
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// A null result leaves result untouched and returns ErrNotFound.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
			return ErrNotFound
		}

		if result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// TransactionByHash retrieves a transaction by hash.
func (c *HTTPClient) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction
	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{hash}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransactionReceipt retrieves the receipt of a mined transaction.
func (c *HTTPClient) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var r Receipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// BlockByNumber retrieves a block header without transaction bodies.
func (c *HTTPClient) BlockByNumber(ctx context.Context, number int64) (*Block, error) {
	var b Block
	params := []interface{}{hexutil.EncodeUint64(uint64(number)), false}
	if err := c.call(ctx, "eth_getBlockByNumber", params, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// BlockNumber returns the latest block height.
func (c *HTTPClient) BlockNumber(ctx context.Context) (int64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", nil, &n); err != nil {
		return 0, err
	}
	return int64(n), nil
}

// GetLogs retrieves logs matching the filter.
func (c *HTTPClient) GetLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	var logs []Log
	err := c.call(ctx, "eth_getLogs", []interface{}{filter.params(true)}, &logs)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return logs, err
}

// TokenDecimals reads ERC-20 decimals() via eth_call at the latest block.
func (c *HTTPClient) TokenDecimals(ctx context.Context, network, token string) (int, error) {
	if network != "" && c.network != "" && network != c.network {
		return 0, fmt.Errorf("client bound to %s, asked for %s", c.network, network)
	}

	data, err := ERC20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}

	out, err := c.ethCall(ctx, token, data)
	if err != nil {
		return 0, err
	}

	values, err := ERC20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return int(d), nil
}

// TokenSymbol reads ERC-20 symbol() via eth_call at the latest block.
func (c *HTTPClient) TokenSymbol(ctx context.Context, token string) (string, error) {
	data, err := ERC20ABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("pack symbol: %w", err)
	}
	out, err := c.ethCall(ctx, token, data)
	if err != nil {
		return "", err
	}
	values, err := ERC20ABI.Unpack("symbol", out)
	if err != nil {
		return "", fmt.Errorf("unpack symbol: %w", err)
	}
	sym, _ := values[0].(string)
	return strings.TrimSpace(sym), nil
}

func (c *HTTPClient) ethCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	call := map[string]interface{}{
		"to":   to,
		"data": hexutil.Encode(data),
	}
	var out hexutil.Bytes
	if err := c.call(ctx, "eth_call", []interface{}{call, "latest"}, &out); err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", to, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("eth_call %s: empty result", to)
	}
	return out, nil
}

var _ Client = (*HTTPClient)(nil)
