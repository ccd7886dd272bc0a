// Package chain implements the disperser's chain client on top of go-ethereum.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/okx/disperser/disperse"
)

var (
	_ disperse.ChainClient = (*EthClient)(nil)
)

// Config holds the connection and signing settings of an EthClient.
type Config struct {
	RPCURL     string
	PrivateKey *ecdsa.PrivateKey
	Contract   common.Address
	// ConfirmTimeout bounds the receipt wait. Zero waits as long as ctx allows.
	ConfirmTimeout time.Duration
	// RateLimit caps RPC requests per second. Zero means unlimited.
	RateLimit float64
}

// EthClient sends disperseEther transactions from a single key.
type EthClient struct {
	eth            *ethclient.Client
	auth           *bind.TransactOpts
	contract       common.Address
	disperseABI    abi.ABI
	limiter        *rate.Limiter
	confirmTimeout time.Duration
	log            log.Logger
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}
}

func newWebsocketDialer() websocket.Dialer {
	return websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 30 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
}

// Dial connects to cfg.RPCURL (http, https, ws or wss) and prepares a signer
// for the chain it reports.
func Dial(ctx context.Context, cfg Config, logger log.Logger) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url is required")
	}
	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL,
		rpc.WithHTTPClient(newHTTPClient()),
		rpc.WithWebsocketDialer(newWebsocketDialer()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}
	c, err := NewEthClient(ctx, rpcClient, cfg, logger)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return c, nil
}

// NewEthClient builds an EthClient over an established RPC connection.
func NewEthClient(ctx context.Context, rpcClient *rpc.Client, cfg Config, logger log.Logger) (*EthClient, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("private key is required")
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(cfg.PrivateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	parsed, err := DisperseABI()
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to chain", "chainId", chainID, "account", auth.From, "contract", cfg.Contract)
	return &EthClient{
		eth:            eth,
		auth:           auth,
		contract:       cfg.Contract,
		disperseABI:    parsed,
		limiter:        newLimiter(cfg.RateLimit),
		confirmTimeout: cfg.ConfirmTimeout,
		log:            logger,
	}, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Close releases the underlying RPC connection.
func (c *EthClient) Close() {
	c.eth.Close()
}

func (c *EthClient) From() common.Address {
	return c.auth.From
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.BalanceAt(ctx, account, nil)
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.SuggestGasPrice(ctx)
}

func (c *EthClient) EstimateDisperseGas(ctx context.Context, call disperse.DisperseCall) (uint64, error) {
	data, err := PackDisperse(c.disperseABI, call.Recipients, call.Values)
	if err != nil {
		return 0, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.auth.From,
		To:    &c.contract,
		Value: call.Value,
		Data:  data,
	})
}

// SendDisperse signs a legacy transaction at the account's pending nonce and
// broadcasts it.
func (c *EthClient) SendDisperse(ctx context.Context, call disperse.DisperseCall, quote disperse.GasQuote) (*types.Transaction, error) {
	data, err := PackDisperse(c.disperseABI, call.Recipients, call.Values)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.auth.From)
	if err != nil {
		return nil, fmt.Errorf("failed to query nonce: %w", err)
	}

	unsignedTx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    call.Value,
		Gas:      quote.GasLimit,
		GasPrice: quote.GasPrice,
		Data:     data,
	})
	signedTx, err := c.auth.Signer(c.auth.From, unsignedTx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return nil, err
	}
	c.log.Debug("Broadcast transaction", "tx", signedTx.Hash(), "nonce", nonce, "gas", quote.GasLimit)
	return signedTx, nil
}

// WaitMined blocks until tx has a receipt.
func (c *EthClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("timed out waiting for %s: %w", tx.Hash(), err)
	}
	return receipt, err
}
