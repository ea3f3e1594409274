package integrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/rs/zerolog"
)

// JSON-RPC Structures for calls to an external lending adapter

// JSONRPCRequest defines the structure of a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  AdapterCall `json:"params"`
}

// AdapterCall defines the parameters shared by every adapter method.
type AdapterCall struct {
	Integrator string `json:"integrator"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount,omitempty"`
	Account    string `json:"account,omitempty"` // source for deposits, receiver for withdrawals
	HasTxFee   bool   `json:"has_tx_fee,omitempty"`
}

// JSONRPCResponse defines the structure of a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Result  AdapterResult `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// AdapterResult carries the amount an adapter method settled.
type AdapterResult struct {
	Amount string `json:"amount"`
}

// JSONRPCError defines the structure of a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Adapter method names.
const (
	MethodDeposit  = "integrator_deposit"
	MethodWithdraw = "integrator_withdraw"
	MethodBalance  = "integrator_balance"
)

// RPCClient talks to an out-of-process lending adapter over JSON-RPC 2.0.
type RPCClient struct {
	name       string
	endpoint   string
	pool       string
	httpClient *http.Client
	nextID     atomic.Uint64
	log        zerolog.Logger
}

var _ Integrator = (*RPCClient)(nil)

// NewRPCClient creates a client for the adapter at endpoint. pool is the basket account the
// adapter pulls deposits from.
func NewRPCClient(name, endpoint, pool string, timeout time.Duration) (*RPCClient, error) {
	if name == "" {
		return nil, errors.New("integrator name cannot be empty")
	}
	if endpoint == "" {
		return nil, errors.Join(ErrRPCRequestFailed, errors.New("adapter endpoint is not configured"))
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RPCClient{
		name:       name,
		endpoint:   endpoint,
		pool:       pool,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.GetForComponent("integrator_rpc").With().Str("integrator", name).Logger(),
	}, nil
}

// Name implements Integrator.
func (c *RPCClient) Name() string {
	return c.name
}

// Deposit implements Integrator.
func (c *RPCClient) Deposit(ctx context.Context, asset string, amount sdkmath.Int, hasTxFee bool) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return c.call(ctx, MethodDeposit, AdapterCall{
		Integrator: c.name,
		Asset:      asset,
		Amount:     amount.String(),
		Account:    c.pool,
		HasTxFee:   hasTxFee,
	})
}

// Withdraw implements Integrator.
func (c *RPCClient) Withdraw(ctx context.Context, receiver, asset string, amount sdkmath.Int, hasTxFee bool) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return c.call(ctx, MethodWithdraw, AdapterCall{
		Integrator: c.name,
		Asset:      asset,
		Amount:     amount.String(),
		Account:    receiver,
		HasTxFee:   hasTxFee,
	})
}

// CheckBalance implements Integrator.
func (c *RPCClient) CheckBalance(ctx context.Context, asset string) (sdkmath.Int, error) {
	return c.call(ctx, MethodBalance, AdapterCall{Integrator: c.name, Asset: asset})
}

// call executes one JSON-RPC method and parses the settled amount.
func (c *RPCClient) call(ctx context.Context, method string, params AdapterCall) (sdkmath.Int, error) {
	if params.Asset == "" {
		return sdkmath.ZeroInt(), ErrInvalidAsset
	}
	jsonData, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to marshal JSON-RPC request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug().
		Str("endpoint", c.endpoint).
		Str("method", method).
		Str("asset", params.Asset).
		Str("amount", params.Amount).
		Msg("Executing adapter call")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", c.endpoint).Msg("Failed to execute HTTP request")
		return sdkmath.ZeroInt(), errors.Join(ErrRPCRequestFailed, ErrIntegratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sdkmath.ZeroInt(), errors.Join(ErrRPCRequestFailed, ErrIntegratorUnavailable, fmt.Errorf("HTTP request failed with status: %d %s", resp.StatusCode, resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to read response body: %w", err))
	}
	if len(body) == 0 {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse, errors.New("response body is empty"))
	}
	return parseAdapterResponse(body)
}

// parseAdapterResponse validates the JSON-RPC envelope and the settled amount.
func parseAdapterResponse(body []byte) (sdkmath.Int, error) {
	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse, fmt.Errorf("failed to unmarshal JSON-RPC response: %w", err))
	}
	if rpcResp.Error != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrIntegratorUnavailable, fmt.Errorf("RPC error (code %d): %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}
	if rpcResp.Result.Amount == "" {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse, errors.New("amount is empty"))
	}
	amount, ok := sdkmath.NewIntFromString(rpcResp.Result.Amount)
	if !ok || amount.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse, fmt.Errorf("amount %q is not a non-negative integer", rpcResp.Result.Amount))
	}
	return amount, nil
}
