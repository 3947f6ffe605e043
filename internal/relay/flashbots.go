package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/sugawarayuuta/sonnet"

	"github.com/pulkyeet/relay-arb/internal/bundle"
)

var (
	// ErrRelayRPC is a transport failure or a JSON-RPC error from the relay.
	ErrRelayRPC = errors.New("relay rpc error")
	// ErrRelayUnavailable means the breaker is open and the call was not made.
	ErrRelayUnavailable = errors.New("relay unavailable")
)

const signatureHeader = "X-Flashbots-Signature"

// ChainReader is satisfied by *eth.Client.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Options struct {
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	// consecutive failed calls before the breaker opens
	MaxFailures uint32
	// how long the breaker stays open before a probe
	Cooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxFailures == 0 {
		o.MaxFailures = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	return o
}

// Client talks to a Flashbots-compatible relay. Every request body is
// signed with the auth key, which identifies the searcher to the relay and
// holds no funds.
type Client struct {
	url      string
	authKey  *ecdsa.PrivateKey
	authAddr common.Address
	httpc    *http.Client
	chain    ChainReader
	breaker  *gobreaker.CircuitBreaker
	poll     time.Duration
	logger   zerolog.Logger
}

func NewClient(url string, authKey *ecdsa.PrivateKey, chain ChainReader, opts Options, logger zerolog.Logger) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("relay url is empty")
	}
	if authKey == nil {
		return nil, fmt.Errorf("relay auth key is nil")
	}
	opts = opts.withDefaults()
	logger = logger.With().Str("component", "relay").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "relay",
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("relay breaker state change")
		},
	})

	return &Client{
		url:      url,
		authKey:  authKey,
		authAddr: crypto.PubkeyToAddress(authKey.PublicKey),
		httpc:    &http.Client{Timeout: opts.HTTPTimeout},
		chain:    chain,
		breaker:  breaker,
		poll:     opts.PollInterval,
		logger:   logger,
	}, nil
}

// signBody follows the relay's auth scheme: an EIP-191 signature over the
// hex keccak of the body, sent as "address:signature".
func (c *Client) signBody(body []byte) (string, error) {
	hashed := crypto.Keccak256Hash(body).Hex()
	sig, err := crypto.Sign(accounts.TextHash([]byte(hashed)), c.authKey)
	if err != nil {
		return "", err
	}
	return c.authAddr.Hex() + ":" + hexutil.Encode(sig), nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// call posts one JSON-RPC request through the breaker and decodes the whole
// response into out, which must carry its own result and error fields.
func (c *Client) call(ctx context.Context, method string, params any, out any, rpcErr func() *rpcError) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, method, params, out, rpcErr)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrRelayUnavailable, method, err)
	}
	return err
}

func (c *Client) post(ctx context.Context, method string, params any, out any, rpcErr func() *rpcError) error {
	body, err := sonnet.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: []any{params}})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	sig, err := c.signBody(body)
	if err != nil {
		return fmt.Errorf("sign %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, sig)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRelayRPC, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s read: %w", ErrRelayRPC, method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: http %d: %s", ErrRelayRPC, method, resp.StatusCode, truncate(raw, 200))
	}
	if err := sonnet.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s decode: %w", ErrRelayRPC, method, err)
	}
	if e := rpcErr(); e != nil {
		return fmt.Errorf("%w: %s: %w", ErrRelayRPC, method, e)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func encodeTxs(b *bundle.Bundle) ([]string, error) {
	raw, err := b.RawTransactions()
	if err != nil {
		return nil, err
	}
	txs := make([]string, len(raw))
	for i, r := range raw {
		txs[i] = hexutil.Encode(r)
	}
	return txs, nil
}

type callBundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber"`
}

type callBundleTx struct {
	TxHash  string `json:"txHash"`
	GasUsed uint64 `json:"gasUsed"`
	Error   string `json:"error,omitempty"`
	Revert  string `json:"revert,omitempty"`
}

type callBundleResult struct {
	BundleHash   string         `json:"bundleHash"`
	CoinbaseDiff string         `json:"coinbaseDiff"`
	TotalGasUsed uint64         `json:"totalGasUsed"`
	Results      []callBundleTx `json:"results"`
}

type callBundleResponse struct {
	Result *callBundleResult `json:"result"`
	Error  *rpcError         `json:"error"`
}

// Simulate runs the bundle with eth_callBundle against the latest state. A
// reverting tx is a failed simulation, not an error; errors mean the relay
// could not be asked.
func (c *Client) Simulate(ctx context.Context, b *bundle.Bundle) (*bundle.SimulationResult, error) {
	txs, err := encodeTxs(b)
	if err != nil {
		return nil, err
	}

	var resp callBundleResponse
	err = c.call(ctx, "eth_callBundle", callBundleParams{
		Txs:              txs,
		BlockNumber:      hexutil.EncodeUint64(b.TargetBlock),
		StateBlockNumber: "latest",
	}, &resp, func() *rpcError { return resp.Error })
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%w: eth_callBundle: empty result", ErrRelayRPC)
	}

	res := &bundle.SimulationResult{
		Success:      true,
		TotalGasUsed: resp.Result.TotalGasUsed,
		CoinbaseDiff: new(big.Int),
	}
	if diff, ok := new(big.Int).SetString(resp.Result.CoinbaseDiff, 10); ok {
		res.CoinbaseDiff = diff
	}
	for _, tx := range resp.Result.Results {
		res.Transactions = append(res.Transactions, bundle.TxSimulation{
			TxHash:  common.HexToHash(tx.TxHash),
			GasUsed: tx.GasUsed,
			Error:   tx.Error,
			Revert:  tx.Revert,
		})
		if tx.Error != "" || tx.Revert != "" {
			res.Success = false
		}
	}

	c.logger.Debug().
		Str("bundle", b.Hash().Hex()).
		Bool("success", res.Success).
		Uint64("gas_used", res.TotalGasUsed).
		Msg("bundle simulated")

	return res, nil
}

type sendBundleParams struct {
	Txs         []string `json:"txs"`
	BlockNumber string   `json:"blockNumber"`
}

type sendBundleResult struct {
	BundleHash string `json:"bundleHash"`
}

type sendBundleResponse struct {
	Result *sendBundleResult `json:"result"`
	Error  *rpcError         `json:"error"`
}

// SendBundle submits with eth_sendBundle for the bundle's target block.
func (c *Client) SendBundle(ctx context.Context, b *bundle.Bundle) (bundle.Submission, error) {
	txs, err := encodeTxs(b)
	if err != nil {
		return nil, err
	}

	var resp sendBundleResponse
	err = c.call(ctx, "eth_sendBundle", sendBundleParams{
		Txs:         txs,
		BlockNumber: hexutil.EncodeUint64(b.TargetBlock),
	}, &resp, func() *rpcError { return resp.Error })
	if err != nil {
		return nil, err
	}

	hash := b.Hash()
	if resp.Result != nil && resp.Result.BundleHash != "" {
		hash = common.HexToHash(resp.Result.BundleHash)
	}

	return &submission{
		client:      c,
		hash:        hash,
		firstTx:     b.Transactions[0].Hash(),
		targetBlock: b.TargetBlock,
	}, nil
}

type submission struct {
	client      *Client
	hash        common.Hash
	firstTx     common.Hash
	targetBlock uint64
}

func (s *submission) BundleHash() common.Hash {
	return s.hash
}

// Wait polls until the bundle's first tx has a receipt or a block past the
// target is mined without it. Bundles are atomic, so one receipt is enough.
// While the head sits on the target the receipt may still be indexing, so
// polling goes on.
func (s *submission) Wait(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(s.client.poll)
	defer ticker.Stop()

	for {
		receipt, err := s.client.chain.TransactionReceipt(ctx, s.firstTx)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.client.logger.Debug().Err(err).Str("bundle", s.hash.Hex()).Msg("receipt poll failed")
		}

		head, err := s.client.chain.BlockNumber(ctx)
		if err == nil && head > s.targetBlock {
			// the target block is buried; check once more in case it
			// landed between the two calls
			receipt, err := s.client.chain.TransactionReceipt(ctx, s.firstTx)
			if err == nil && receipt != nil {
				return receipt, nil
			}
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
