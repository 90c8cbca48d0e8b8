package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/aztec-rpc/log"
	"github.com/vocdoni/aztec-rpc/tx"
	"github.com/vocdoni/aztec-rpc/types"
)

// Namespace is the JSON-RPC namespace of the node methods.
const Namespace = "node"

// JSON-RPC error codes of the node errors.
const (
	codeTxNotFound = -32001
	codeTxRejected = -32002

	codeServerError   = -32000
	codeInternalError = -32603
)

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func toRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTxNotFound):
		return &rpcError{code: codeTxNotFound, msg: err.Error()}
	case errors.Is(err, ErrTxRejected):
		return &rpcError{code: codeTxRejected, msg: err.Error()}
	}
	return err
}

// remoteError is a node error received over JSON-RPC.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

func fromRPCError(err error) error {
	var re gethrpc.Error
	if !errors.As(err, &re) {
		return err
	}
	switch re.ErrorCode() {
	case codeTxNotFound:
		return &remoteError{sentinel: ErrTxNotFound, msg: re.Error()}
	case codeTxRejected:
		return &remoteError{sentinel: ErrTxRejected, msg: re.Error()}
	}
	return err
}

// rpcService exposes a Node under the node namespace.
type rpcService struct {
	node Node
}

func (s *rpcService) SendTx(ctx context.Context, t *tx.Tx) (types.TxHash, error) {
	h, err := s.node.SendTx(ctx, t)
	return h, toRPCError(err)
}

func (s *rpcService) GetTxReceipt(ctx context.Context, hash types.TxHash) (*TxReceipt, error) {
	r, err := s.node.GetTxReceipt(ctx, hash)
	return r, toRPCError(err)
}

func (s *rpcService) GetBlocks(ctx context.Context, from hexutil.Uint64, limit int) ([]*Block, error) {
	blocks, err := s.node.GetBlocks(ctx, uint64(from), limit)
	return blocks, toRPCError(err)
}

func (s *rpcService) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := s.node.BlockNumber(ctx)
	return hexutil.Uint64(n), toRPCError(err)
}

// NewRPCServer returns a JSON-RPC server for n. The server is an
// http.Handler.
func NewRPCServer(n Node) (*gethrpc.Server, error) {
	srv := gethrpc.NewServer()
	if err := srv.RegisterName(Namespace, &rpcService{node: n}); err != nil {
		return nil, fmt.Errorf("could not register node service: %w", err)
	}
	return srv, nil
}

// ClientConfig configures the retries of the JSON-RPC client.
type ClientConfig struct {
	// Timeout bounds each attempt. Zero disables it.
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
}

// DefaultClientConfig returns the default retry settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
}

// Client talks to a remote node over JSON-RPC.
type Client struct {
	rpc *gethrpc.Client
	cfg ClientConfig
}

var _ Node = (*Client)(nil)

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, cfg ClientConfig) (*Client, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("could not dial node %s: %w", url, err)
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Client{rpc: c, cfg: cfg}, nil
}

// Close closes the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// isRetryable reports whether err may go away by itself: transport
// failures, 5xx and 429 responses and generic server errors.
func isRetryable(err error) bool {
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		return code == codeServerError || code == codeInternalError
	}
	return true
}

func (c *Client) attempt(ctx context.Context, result any, method string, args ...any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	return c.rpc.CallContext(ctx, result, method, args...)
}

// call performs a request with exponential backoff between attempts.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	method = Namespace + "_" + method
	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debugw("retrying node request", "method", method, "attempt", attempt+1, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * c.cfg.BackoffMultiplier)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := c.attempt(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return fromRPCError(err)
		}
		lastErr = err
		log.Warnw("node request failed", "method", method, "attempt", attempt+1, "error", err.Error())
	}
	return fmt.Errorf("node request %s failed after %d attempts: %w", method, c.cfg.MaxRetries+1, lastErr)
}

// SendTx submits t to the node.
func (c *Client) SendTx(ctx context.Context, t *tx.Tx) (types.TxHash, error) {
	var h types.TxHash
	if err := c.call(ctx, &h, "sendTx", t); err != nil {
		return types.TxHash{}, err
	}
	return h, nil
}

// GetTxReceipt returns the receipt of a tx.
func (c *Client) GetTxReceipt(ctx context.Context, hash types.TxHash) (*TxReceipt, error) {
	r := &TxReceipt{}
	if err := c.call(ctx, r, "getTxReceipt", hash); err != nil {
		return nil, err
	}
	return r, nil
}

// GetBlocks returns up to limit blocks starting at from.
func (c *Client) GetBlocks(ctx context.Context, from uint64, limit int) ([]*Block, error) {
	var blocks []*Block
	if err := c.call(ctx, &blocks, "getBlocks", hexutil.Uint64(from), limit); err != nil {
		return nil, err
	}
	return blocks, nil
}

// BlockNumber returns the number of the last mined block.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}
